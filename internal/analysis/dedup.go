package analysis

import "github.com/jengzang/loi-backend-go/internal/models"

// Deduplicate keeps the first row of every key, preserving order.
// Applying it twice gives the same rows as applying it once.
func Deduplicate[T any, K comparable](rows []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

type addressKey struct {
	rank    int
	address string
}

// addressKeyOf is the dedup key of the address report: (rank, address)
func addressKeyOf(r models.AddressJoinRow) addressKey {
	return addressKey{r.Rank, r.Address}
}

type accountKey struct {
	rank        int
	accountID   string
	accountName string
}

// accountKeyOf is the dedup key of the account report: (rank, account id, account name)
func accountKeyOf(r models.AccountJoinRow) accountKey {
	return accountKey{r.Rank, r.AccountID, r.AccountName}
}
