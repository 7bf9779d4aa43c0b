package routing

import (
	"fmt"
	"time"

	"github.com/kirinyoku/tripgo/internal/domain"
)

type Config struct {
	// LargePartyThreshold is the largest party that may self-serve.
	LargePartyThreshold int `yaml:"large_party_threshold"`
	// MaxSelfServiceNights is the longest stay that may self-serve.
	MaxSelfServiceNights int `yaml:"max_self_service_nights"`
	SuggestionCount      int `yaml:"suggestion_count"`
	SuggestionHorizon    int `yaml:"suggestion_horizon_days"`
}

// Request is the routing input for one prospective booking.
type Request struct {
	TravelDate time.Time
	ReturnDate *time.Time
	PartySize  int
	// Today anchors date validation; zero means time.Now().
	Today time.Time
}

type Policy struct {
	cfg Config
}

func New(cfg Config) *Policy {
	if cfg.LargePartyThreshold <= 0 {
		cfg.LargePartyThreshold = 8
	}

	if cfg.MaxSelfServiceNights <= 0 {
		cfg.MaxSelfServiceNights = 21
	}

	if cfg.SuggestionCount <= 0 {
		cfg.SuggestionCount = 3
	}

	if cfg.SuggestionHorizon <= 0 {
		cfg.SuggestionHorizon = 90
	}

	return &Policy{cfg: cfg}
}

// Decide chooses the fulfillment path for a booking request. It has no side effects.
//
// Parameters:
//   - dest: the destination as returned by the catalog; nil is an unknown destination.
//   - req: requested dates and party size.
//
// Returns:
//   - domain.RoutingDecision: the path plus availability, reason and suggested start dates.
//   - error: domain.ErrDestinationNotFound if dest is nil.
//   - error: *domain.ValidationError if the request is malformed.
func (p *Policy) Decide(dest *domain.Destination, req Request) (domain.RoutingDecision, error) {
	const op = "service.routing.Decide"

	if dest == nil {
		return domain.RoutingDecision{}, fmt.Errorf("%s:%w", op, domain.ErrDestinationNotFound)
	}

	if err := validate(req); err != nil {
		return domain.RoutingDecision{}, fmt.Errorf("%s:%w", op, err)
	}

	start := domain.Day(req.TravelDate)
	end := start
	if req.ReturnDate != nil {
		end = domain.Day(*req.ReturnDate)
	}
	nights := int(end.Sub(start).Hours() / 24)

	decision := domain.RoutingDecision{Path: p.path(dest, req.PartySize, nights)}

	switch {
	case !dest.Active:
		decision.Reason = "destination is not accepting bookings"
	case dest.Capacity > 0 && req.PartySize > dest.Capacity:
		decision.Reason = fmt.Sprintf("party of %d exceeds destination capacity of %d", req.PartySize, dest.Capacity)
	case dest.MinTravelers > 0 && req.PartySize < dest.MinTravelers:
		decision.Reason = fmt.Sprintf("destination requires at least %d travelers", dest.MinTravelers)
	case blackedOut(dest, start, end):
		decision.Reason = "requested dates fall within a blackout period"
		decision.SuggestedDates = p.suggest(dest, start, nights)
	default:
		decision.Available = true
	}

	return decision, nil
}

func validate(req Request) error {
	if req.PartySize <= 0 {
		return domain.NewValidationError("party_size", "must be positive")
	}

	if req.TravelDate.IsZero() {
		return domain.NewValidationError("travel_date", "is required")
	}

	today := req.Today
	if today.IsZero() {
		today = time.Now()
	}

	start := domain.Day(req.TravelDate)
	if start.Before(domain.Day(today)) {
		return domain.NewValidationError("travel_date", "must not be in the past")
	}

	if req.ReturnDate != nil && domain.Day(*req.ReturnDate).Before(start) {
		return domain.NewValidationError("return_date", "must not be before travel date")
	}

	return nil
}

func (p *Policy) path(dest *domain.Destination, party, nights int) domain.BookingType {
	switch {
	case dest.RequiresAgent,
		dest.MultiLeg,
		dest.Category == domain.CategoryPremium,
		party > p.cfg.LargePartyThreshold,
		dest.MaxTravelers > 0 && party > dest.MaxTravelers,
		nights > p.cfg.MaxSelfServiceNights:
		return domain.BookingAgent
	}

	return domain.BookingDirect
}

func blackedOut(dest *domain.Destination, start, end time.Time) bool {
	for _, r := range dest.Blackouts {
		if r.Overlaps(start, end) {
			return true
		}
	}

	return false
}

// suggest finds the next start dates after start where a stay of the same length
// avoids every blackout.
func (p *Policy) suggest(dest *domain.Destination, start time.Time, nights int) []time.Time {
	var out []time.Time

	for i := 1; i <= p.cfg.SuggestionHorizon && len(out) < p.cfg.SuggestionCount; i++ {
		s := start.AddDate(0, 0, i)
		if !blackedOut(dest, s, s.AddDate(0, 0, nights)) {
			out = append(out, s)
		}
	}

	return out
}
