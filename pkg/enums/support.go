package enums

type SupportCategory string

const (
	SupportCategoryOrder     SupportCategory = "order"
	SupportCategoryPayment   SupportCategory = "payment"
	SupportCategoryAccount   SupportCategory = "account"
	SupportCategoryTechnical SupportCategory = "technical"
	SupportCategoryOther     SupportCategory = "other"
)

var validSupportCategories = []SupportCategory{
	SupportCategoryOrder,
	SupportCategoryPayment,
	SupportCategoryAccount,
	SupportCategoryTechnical,
	SupportCategoryOther,
}

func (c SupportCategory) IsValid() bool {
	return contains(validSupportCategories, c)
}

func ParseSupportCategory(value string) (SupportCategory, error) {
	return parse(validSupportCategories, value, "support category")
}

type SupportPriority string

const (
	SupportPriorityLow    SupportPriority = "low"
	SupportPriorityMedium SupportPriority = "medium"
	SupportPriorityHigh   SupportPriority = "high"
)

var validSupportPriorities = []SupportPriority{SupportPriorityLow, SupportPriorityMedium, SupportPriorityHigh}

func (p SupportPriority) IsValid() bool {
	return contains(validSupportPriorities, p)
}

func ParseSupportPriority(value string) (SupportPriority, error) {
	return parse(validSupportPriorities, value, "support priority")
}

type SupportStatus string

const (
	SupportStatusOpen     SupportStatus = "open"
	SupportStatusResolved SupportStatus = "resolved"
	SupportStatusClosed   SupportStatus = "closed"
)

var validSupportStatuses = []SupportStatus{SupportStatusOpen, SupportStatusResolved, SupportStatusClosed}

func (s SupportStatus) IsValid() bool {
	return contains(validSupportStatuses, s)
}

func ParseSupportStatus(value string) (SupportStatus, error) {
	return parse(validSupportStatuses, value, "support status")
}
