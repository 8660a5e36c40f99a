package consumer

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/mockcouch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/batch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/schema"
	"github.com/shpitdev/couch-xray/pkg/pipeline/stage"
	"github.com/shpitdev/couch-xray/pkg/pipeline/worker"
)

func TestPublicPackagesCompose(t *testing.T) {
	t.Parallel()

	_ = schema.ReportContract{Format: schema.FormatTable}

	srv := mockcouch.New()
	srv.AddDatabase(mockcouch.Database{Name: "users", DocCount: 3})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client, err := couch.NewClient(couch.Options{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	exec := batch.New(client, batch.Options{Workers: 2})
	out, outcome, err := stage.Run(context.Background(), exec, stage.BaseInfo{}, []core.Entity{core.NewEntity(ts.URL, "users")})
	if err != nil {
		t.Fatalf("stage.Run failed: %v", err)
	}
	if len(out) != 1 || outcome.Succeeded != 1 {
		t.Fatalf("unexpected outcome: %+v (%d entities)", outcome, len(out))
	}

	_, err = worker.ProcessAll(context.Background(), []string{"x"}, func(_ context.Context, in string) (string, error) {
		return in, nil
	}, worker.Options{Workers: 1})
	if err != nil {
		t.Fatalf("ProcessAll failed: %v", err)
	}
}
