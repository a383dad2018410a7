package order

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// scopedKey namespaces a client supplied idempotency key by its caller, so
// keys chosen by different customers, or by a customer and a guest, never
// collide.
func scopedKey(userID *uint64, key string) string {
	if userID == nil {
		return "guest:" + key
	}
	return "user:" + strconv.FormatUint(*userID, 10) + ":" + key
}

// fingerprint hashes the normalized request. A replay is only honoured when
// the stored order was placed from the same request.
func (r *PlaceOrderRequest) fingerprint() string {
	items := append([]CartItem(nil), r.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	h := sha256.New()
	fmt.Fprintf(h, "%q|%q|%s|%q|%q|", r.Address, r.Phone, r.PaymentMethod, strings.ToUpper(r.VoucherCode), r.Note)
	for _, it := range items {
		fmt.Fprintf(h, "%d:%d;", it.ProductID, it.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))
}
