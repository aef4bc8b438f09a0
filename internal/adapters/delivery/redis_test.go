package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"

	"med-reminder/internal/domain"
)

type fakePusher struct {
	key    string
	values []interface{}
	err    error
}

func (f *fakePusher) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.key = key
	f.values = append(f.values, values...)
	return redis.NewIntResult(int64(len(f.values)), f.err)
}

func TestDeliverPushesRenderedReport(t *testing.T) {
	p := &fakePusher{}
	q := NewRedisReportQueue(p, "adherence_reports")
	user := domain.User{ID: "u1", Contact: domain.Contact{Email: "p@example.com"}}
	report := domain.AdherenceReport{UserID: "u1", Period: domain.PeriodDaily, TakenCount: 1, TotalCount: 2, OverallRate: 50}

	if err := q.Deliver(context.Background(), user, report); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if p.key != "adherence_reports" || len(p.values) != 1 {
		t.Fatalf("ожидали одно сообщение в очереди")
	}
	raw, ok := p.values[0].([]byte)
	if !ok {
		t.Fatalf("ожидали JSON в байтах")
	}
	var msg ReportMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if msg.Email != "p@example.com" || msg.Report.OverallRate != 50 || !strings.Contains(msg.Text, "50%") {
		t.Fatalf("неверное сообщение: %+v", msg)
	}
}

func TestDeliverReturnsRedisError(t *testing.T) {
	p := &fakePusher{err: errors.New("redis down")}
	q := NewRedisReportQueue(p, "k")
	if err := q.Deliver(context.Background(), domain.User{ID: "u1"}, domain.AdherenceReport{}); err == nil {
		t.Fatalf("ожидали ошибку")
	}
}
