package model

import "time"

// ConsentStatus is the stored state of a consent request. Expired is
// never stored; it is derived at read time (see EffectiveStatus).
type ConsentStatus string

const (
	ConsentPending  ConsentStatus = "pending"
	ConsentApproved ConsentStatus = "approved"
	ConsentDenied   ConsentStatus = "denied"
	ConsentExpired  ConsentStatus = "expired"
)

// ConsentRequest is a subject-scoped authorization request filed by a
// requester for one record. Status transitions only pending->approved
// and pending->denied; approved/denied/expired are terminal.
type ConsentRequest struct {
	ID            string        `json:"id"`
	SubjectID     string        `json:"subjectId"`
	RequesterID   string        `json:"requesterId"`
	RequesterType string        `json:"requesterType"`
	RecordID      string        `json:"recordId"`
	Status        ConsentStatus `json:"status"`
	RequestedAt   time.Time     `json:"requestedAt"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty"`
	ExpiryHours   int           `json:"expiryHours"`
}

// EffectiveStatus derives the read-time state: an approved request
// whose expiry window has passed reads as expired even though the
// stored status stays approved.
func (r *ConsentRequest) EffectiveStatus(now time.Time) ConsentStatus {
	if r.Status == ConsentApproved && r.expiredAt(now) {
		return ConsentExpired
	}
	return r.Status
}

// GrantsAccess reports whether the request authorizes access at now:
// approved and still inside the expiry window.
func (r *ConsentRequest) GrantsAccess(now time.Time) bool {
	return r.Status == ConsentApproved && !r.expiredAt(now)
}

func (r *ConsentRequest) expiredAt(now time.Time) bool {
	if r.ResolvedAt == nil {
		return false
	}
	deadline := r.ResolvedAt.Add(time.Duration(r.ExpiryHours) * time.Hour)
	return now.After(deadline)
}
