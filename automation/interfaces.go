package automation

// Collaborator interfaces consumed by the engine. Concrete implementations
// are wired once at startup; tests substitute fakes. Every implementation
// must be safe to call more than once for the same logical effect, because
// dispatch is at-least-once.

// EmailSender delivers a templated email. Template rendering happens inside
// the implementation so retries stay side-effect free up to the actual send.
type EmailSender interface {
	Send(to, subject, templateKey string, data map[string]interface{}) error
}

// EntitlementStore grants an entitlement to a subject. Grant is an upsert.
type EntitlementStore interface {
	Grant(subjectID, entitlementType string) error
}

// PointsService awards points to a subject. The eventID ties the award to
// the triggering event so redelivery awards at most once.
type PointsService interface {
	Award(subjectID string, points int, reason string, eventID uint) error
}
