package history

import "time"

// Event is one completed analysis. The same rows back both the quota ledger
// (count within the trailing window) and the history view, so the two can
// never drift apart.
type Event struct {
	ID          string    `json:"id"`
	Identity    string    `json:"-"`
	CompanyType string    `json:"companyType"`
	InputDoc    string    `json:"inputDoc"`
	Result      string    `json:"result"`
	CreatedAt   time.Time `json:"createdAt"`
}
