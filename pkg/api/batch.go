package api

type (
	// ItemStatus is the outcome of one contact within a batch
	ItemStatus string

	// BatchItem is the per-contact result of a batch operation
	BatchItem struct {
		CampaignID CampaignID `json:"campaign_id"`
		ContactID  ContactID  `json:"contact_id"`
		AccountID  AccountID  `json:"account_id,omitempty"`
		Status     ItemStatus `json:"status"`
		Kind       ErrorKind  `json:"kind,omitempty"`
		Error      string     `json:"error,omitempty"`
		MessageID  string     `json:"message_id,omitempty"`
		Step       int        `json:"step"`
	}

	// BatchSummary is the partial-success report of a batch operation
	BatchSummary struct {
		Items     []BatchItem `json:"items"`
		Aborted   []AccountID `json:"aborted,omitempty"`
		Total     int         `json:"total"`
		Succeeded int         `json:"succeeded"`
		Failed    int         `json:"failed"`
		Skipped   int         `json:"skipped"`
		Deferred  int         `json:"deferred"`
		Cancelled bool        `json:"cancelled,omitempty"`
	}
)

const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
	ItemDeferred  ItemStatus = "deferred"
)

// Add records one item and updates the counters
func (b *BatchSummary) Add(item BatchItem) {
	b.Items = append(b.Items, item)
	b.Total++
	switch item.Status {
	case ItemSucceeded:
		b.Succeeded++
	case ItemFailed:
		b.Failed++
	case ItemSkipped:
		b.Skipped++
	case ItemDeferred:
		b.Deferred++
	}
}

// Merge folds another summary into this one
func (b *BatchSummary) Merge(other *BatchSummary) {
	if other == nil {
		return
	}
	for _, item := range other.Items {
		b.Add(item)
	}
	b.Aborted = append(b.Aborted, other.Aborted...)
	b.Cancelled = b.Cancelled || other.Cancelled
}

// Errors returns the items that failed
func (b *BatchSummary) Errors() []BatchItem {
	var res []BatchItem
	for _, item := range b.Items {
		if item.Status == ItemFailed {
			res = append(res, item)
		}
	}
	return res
}
