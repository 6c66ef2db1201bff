package shared

import "fmt"

// QuotationLockKey builds the redis key guarding saves of one quotation.
func QuotationLockKey(baseNumber string) string {
	return fmt.Sprintf("quotation:%s:save", baseNumber)
}
