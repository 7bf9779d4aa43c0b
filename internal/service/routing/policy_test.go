package routing

import (
	"testing"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func lisbon() *domain.Destination {
	return &domain.Destination{
		ID:                    1,
		Name:                  "Lisbon",
		Category:              domain.CategoryStandard,
		PricePerTravelerCents: 6000,
		Currency:              "usd",
		Capacity:              20,
		MaxTravelers:          10,
		Active:                true,
	}
}

func TestPolicy_Decide_Direct(t *testing.T) {
	p := New(Config{})

	d, err := p.Decide(lisbon(), Request{
		TravelDate: date(2026, 6, 1),
		ReturnDate: ptr(date(2026, 6, 8)),
		PartySize:  2,
		Today:      today,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingDirect, d.Path)
	assert.True(t, d.Available)
	assert.Empty(t, d.Reason)
}

func TestPolicy_Decide_AgentPaths(t *testing.T) {
	p := New(Config{LargePartyThreshold: 6, MaxSelfServiceNights: 14})

	testCases := []struct {
		name   string
		mutate func(d *domain.Destination)
		party  int
		ret    time.Time
	}{
		{"premium", func(d *domain.Destination) { d.Category = domain.CategoryPremium }, 2, date(2026, 6, 5)},
		{"multi-leg", func(d *domain.Destination) { d.MultiLeg = true }, 2, date(2026, 6, 5)},
		{"requires agent", func(d *domain.Destination) { d.RequiresAgent = true }, 2, date(2026, 6, 5)},
		{"large party", func(d *domain.Destination) {}, 7, date(2026, 6, 5)},
		{"above self-service max", func(d *domain.Destination) { d.MaxTravelers = 4 }, 5, date(2026, 6, 5)},
		{"long stay", func(d *domain.Destination) {}, 2, date(2026, 6, 20)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := lisbon()
			tc.mutate(dest)

			d, err := p.Decide(dest, Request{
				TravelDate: date(2026, 6, 1),
				ReturnDate: ptr(tc.ret),
				PartySize:  tc.party,
				Today:      today,
			})
			require.NoError(t, err)
			assert.Equal(t, domain.BookingAgent, d.Path)
			assert.True(t, d.Available)
		})
	}
}

func TestPolicy_Decide_Validation(t *testing.T) {
	p := New(Config{})

	testCases := []struct {
		name string
		req  Request
	}{
		{"zero party", Request{TravelDate: date(2026, 6, 1), PartySize: 0, Today: today}},
		{"negative party", Request{TravelDate: date(2026, 6, 1), PartySize: -3, Today: today}},
		{"missing date", Request{PartySize: 2, Today: today}},
		{"past date", Request{TravelDate: date(2026, 4, 30), PartySize: 2, Today: today}},
		{"return before travel", Request{TravelDate: date(2026, 6, 2), ReturnDate: ptr(date(2026, 6, 1)), PartySize: 2, Today: today}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Decide(lisbon(), tc.req)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}
}

func TestPolicy_Decide_UnknownDestination(t *testing.T) {
	_, err := New(Config{}).Decide(nil, Request{TravelDate: date(2026, 6, 1), PartySize: 1, Today: today})
	assert.ErrorIs(t, err, domain.ErrDestinationNotFound)
}

func TestPolicy_Decide_Unavailable(t *testing.T) {
	p := New(Config{})

	inactive := lisbon()
	inactive.Active = false
	d, err := p.Decide(inactive, Request{TravelDate: date(2026, 6, 1), PartySize: 2, Today: today})
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.NotEmpty(t, d.Reason)

	d, err = p.Decide(lisbon(), Request{TravelDate: date(2026, 6, 1), PartySize: 21, Today: today})
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.Contains(t, d.Reason, "capacity")

	minimum := lisbon()
	minimum.MinTravelers = 4
	d, err = p.Decide(minimum, Request{TravelDate: date(2026, 6, 1), PartySize: 2, Today: today})
	require.NoError(t, err)
	assert.False(t, d.Available)
}

func TestPolicy_Decide_BlackoutSuggestsDates(t *testing.T) {
	p := New(Config{SuggestionCount: 2})

	dest := lisbon()
	dest.Blackouts = []domain.DateRange{{From: date(2026, 6, 3), To: date(2026, 6, 10)}}

	d, err := p.Decide(dest, Request{
		TravelDate: date(2026, 6, 1),
		ReturnDate: ptr(date(2026, 6, 4)),
		PartySize:  2,
		Today:      today,
	})
	require.NoError(t, err)
	assert.False(t, d.Available)
	assert.Equal(t, []time.Time{date(2026, 6, 11), date(2026, 6, 12)}, d.SuggestedDates)
}

func TestPolicy_Decide_IsPure(t *testing.T) {
	p := New(Config{})
	dest := lisbon()
	req := Request{TravelDate: date(2026, 6, 1), PartySize: 2, Today: today}

	first, err := p.Decide(dest, req)
	require.NoError(t, err)
	second, err := p.Decide(dest, req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, lisbon(), dest)
}
