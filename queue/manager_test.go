package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/routemq/routemq/job"
	"github.com/routemq/routemq/queue"
)

type pingJob struct {
	N int `json:"n"`
}

func (p *pingJob) Class() string                   { return "ping" }
func (p *pingJob) Handle(ctx context.Context) error { return nil }

func TestManager_PushPopRoundTrip(t *testing.T) {
	reg := job.NewRegistry()
	reg.Register("ping", func() job.Job { return &pingJob{} })

	driver := newFakeDriver()
	mgr := queue.NewManager(reg, "default", map[string]queue.Driver{"default": driver})

	if err := mgr.Push(context.Background(), &pingJob{N: 7}, "", ""); err != nil {
		t.Fatal(err)
	}

	size, err := mgr.Size(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if size != 1 {
		t.Fatalf("size = %d, want 1", size)
	}

	env, err := driver.Pop(context.Background(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if env == nil {
		t.Fatal("expected an envelope")
	}

	decoded, err := reg.Decode(env.Class, env.Fields)
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(*pingJob)
	if got.N != 7 {
		t.Errorf("N = %d, want 7", got.N)
	}
}

func TestManager_LaterDelaysAvailability(t *testing.T) {
	reg := job.NewRegistry()
	reg.Register("ping", func() job.Job { return &pingJob{} })

	driver := newFakeDriver()
	mgr := queue.NewManager(reg, "default", map[string]queue.Driver{"default": driver})

	if err := mgr.Later(context.Background(), 100*time.Millisecond, &pingJob{}, "", ""); err != nil {
		t.Fatal(err)
	}

	env, err := driver.Pop(context.Background(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if env != nil {
		t.Fatal("expected no claimable job before delay elapses")
	}

	time.Sleep(150 * time.Millisecond)
	env, err = driver.Pop(context.Background(), "default")
	if err != nil {
		t.Fatal(err)
	}
	if env == nil {
		t.Fatal("expected job to become claimable after delay")
	}
	if env.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", env.Attempts)
	}
}

func TestManager_Bulk(t *testing.T) {
	reg := job.NewRegistry()
	reg.Register("ping", func() job.Job { return &pingJob{} })

	driver := newFakeDriver()
	mgr := queue.NewManager(reg, "default", map[string]queue.Driver{"default": driver})

	jobs := []job.Job{&pingJob{N: 1}, &pingJob{N: 2}, &pingJob{N: 3}}
	if err := mgr.Bulk(context.Background(), jobs, "", ""); err != nil {
		t.Fatal(err)
	}

	size, err := mgr.Size(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}
}

func TestManager_UnknownConnection(t *testing.T) {
	reg := job.NewRegistry()
	mgr := queue.NewManager(reg, "default", map[string]queue.Driver{})
	if err := mgr.Push(context.Background(), &pingJob{}, "", "missing"); err == nil {
		t.Fatal("expected error for unknown connection")
	}
}
