package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"pianolearn/pkg/mail"
)

func TestEnqueueWritesStatusAndStreamEntry(t *testing.T) {
	q, ctx := newTestQueue(t)

	job, err := q.Enqueue(ctx, mail.Message{To: "a@b.com", Subject: "Hello", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.Status != StatusQueued {
		t.Fatalf("status = %q", job.Status)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.To != "a@b.com" || got.Subject != "Hello" {
		t.Fatalf("job = %+v", got)
	}

	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 1 {
		t.Fatalf("stream len = %d", streamLen)
	}
}

func TestEnqueueRejectsEmptyRecipient(t *testing.T) {
	q, ctx := newTestQueue(t)
	if _, err := q.Enqueue(ctx, mail.Message{Subject: "no to"}); err == nil {
		t.Fatal("expected error for empty recipient")
	}
}

func TestHandleMessageDeliversAndAcks(t *testing.T) {
	q, ctx := newTestQueue(t)
	sender := &mail.RecordingSender{}

	job, err := q.Enqueue(ctx, mail.Message{To: "a@b.com", Subject: "Hi", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")
	q.handleMessage(ctx, msg, sender)

	if sent := sender.Sent(); len(sent) != 1 || sent[0].To != "a@b.com" || sent[0].HTML != "<p>x</p>" {
		t.Fatalf("sent = %+v", sender.Sent())
	}
	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q", got.Status)
	}
	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending = %d", pending.Count)
	}
}

func TestHandleMessageRequeuesOnFailure(t *testing.T) {
	q, ctx := newTestQueue(t)
	sender := &mail.RecordingSender{Err: errors.New("smtp down")}

	job, err := q.Enqueue(ctx, mail.Message{To: "a@b.com", Subject: "Hi", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")
	q.handleMessage(ctx, msg, sender)

	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusQueued || got.Attempts != 1 || got.ErrorMessage != "smtp down" {
		t.Fatalf("job = %+v", got)
	}

	requeued := readOne(t, q, ctx, "consumer-2")
	if requeued.Values["job_id"] != job.ID || requeued.Values["to"] != "a@b.com" {
		t.Fatalf("requeued payload = %+v", requeued.Values)
	}
}

func TestHandleMessageFailsAfterMaxRetries(t *testing.T) {
	q, ctx := newTestQueue(t)
	q.maxRetries = 1
	sender := &mail.RecordingSender{Err: errors.New("smtp down")}

	job, err := q.Enqueue(ctx, mail.Message{To: "a@b.com", Subject: "Hi", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg := readOne(t, q, ctx, "consumer-1")
	q.handleMessage(ctx, msg, sender)

	got, _, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	streamLen, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		t.Fatalf("xlen: %v", err)
	}
	if streamLen != 0 {
		t.Fatalf("expected stream drained, len = %d", streamLen)
	}
}

func newTestQueue(t *testing.T) (*RedisEmailQueue, context.Context) {
	t.Helper()

	redisSrv := miniredis.RunT(t)
	q, err := NewRedisEmailQueue(RedisQueueConfig{
		Addr:       redisSrv.Addr(),
		Stream:     "test:emails",
		Group:      "test-mailers",
		Consumer:   "consumer-1",
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	ctx := context.Background()
	q.ensureGroup(ctx)
	return q, ctx
}

func readOne(t *testing.T, q *RedisEmailQueue, ctx context.Context, consumer string) redis.XMessage {
	t.Helper()
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    0,
	}).Result()
	if err != nil {
		t.Fatalf("readgroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one message, got %+v", streams)
	}
	return streams[0].Messages[0]
}
