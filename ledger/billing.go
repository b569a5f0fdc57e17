package ledger

// IsBillable reports whether a lesson counts as debt for its student.
//
// A lesson is billable when it was delivered (completed) or cancelled but
// charged anyway, and it was not funded by a package credit. Credit-funded
// lessons were paid for when the package payment was recorded.
//
// Both the Balance Calculator and the Statement projector use this, so the
// statement's closing balance always equals the student's current balance.
func IsBillable(l Lesson) bool {
	if l.IsDeleted || l.PaidByCredit {
		return false
	}
	switch l.Status {
	case LessonCompleted:
		return true
	case LessonCancelled:
		return l.IsCharged
	}
	return false
}

// IsDelivered reports whether a lesson took place or is billed as if it had.
// Credit-funded lessons that are delivered appear on statements at zero cost.
func IsDelivered(l Lesson) bool {
	if l.IsDeleted {
		return false
	}
	return l.Status == LessonCompleted || (l.Status == LessonCancelled && l.IsCharged)
}
