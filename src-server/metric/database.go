package metric

import (
	"context"
	"time"

	"confdesk/src-server/model"
	"confdesk/src-server/utils"
)

func database(as *utils.AppState) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if _, err := as.BunDB.NewSelect().
		Model((*model.Event)(nil)).
		Where("id = ?", "").
		Exists(ctx); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
