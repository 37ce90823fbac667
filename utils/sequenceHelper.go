package utils

import (
	"context"
	"strings"
	"sync"

	"github.com/lumeodev/cra_backend/config"
)

var mutex sync.Mutex

// NextSequence returns the next value of the per-company sequence stored in
// the given column of T's table. A Redis counter is used when available;
// otherwise (and when the counter is fresh) the sequence is seeded from
// max(column) in the database. The candidate is re-checked against the table
// before being handed out.
func NextSequence[T any](ctx context.Context, companyId string, column string) (int64, error) {
	mutex.Lock()
	defer mutex.Unlock()

	cacheKey := companyId + "-" + strings.ToLower(GetTypeName[T]()) + "_" + column
	var model T
	db := config.GetDB()

	for {
		seqNo, err := config.GetRedisCounter(ctx, cacheKey)
		if err != nil {
			return 0, err
		}
		// fresh counter, or no redis: seed from db
		if seqNo <= 1 {
			var dbSeq *int64
			if err := db.WithContext(ctx).Model(&model).Select("max(" + column + ")").
				Where("company_id = ?", companyId).
				Scan(&dbSeq).Error; err != nil {
				return 0, err
			}
			if dbSeq == nil {
				seqNo = 0
			} else {
				seqNo = *dbSeq
			}
			seqNo++
			if err := config.SetRedisObject(cacheKey, &seqNo, 0); err != nil {
				return 0, err
			}
		}
		// make sure the candidate is not already taken in the db
		if err := ValidateUnique[T](ctx, companyId, column, seqNo, 0); err == nil {
			return seqNo, nil
		}
	}
}
