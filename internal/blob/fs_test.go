package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestFilesystemRoundTrip(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	ctx := context.Background()

	put, err := store.Put(ctx, "PO-1_devices.csv", strings.NewReader("a,b,c\n"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"order_id": "PO-1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.Size != 6 || put.ETag == "" {
		t.Fatalf("unexpected put info: %+v", put)
	}

	info, rc, err := store.Get(ctx, "PO-1_devices.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(body) != "a,b,c\n" {
		t.Fatalf("unexpected body %q err %v", body, err)
	}
	if info.ContentType != "text/csv" || info.Metadata["order_id"] != "PO-1" {
		t.Fatalf("metadata did not survive round trip: %+v", info)
	}

	// overwrite wins by key
	if _, err := store.Put(ctx, "PO-1_devices.csv", strings.NewReader("x\n"), PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	head, err := store.Head(ctx, "PO-1_devices.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if head.Size != 2 {
		t.Fatalf("expected overwritten size, got %+v", head)
	}

	infos, err := store.List(ctx, "PO-1_")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list: %+v err %v", infos, err)
	}

	url, err := store.PresignURL(ctx, "PO-1_devices.csv", SignedURLOptions{})
	if err != nil || !strings.HasPrefix(url, "file://") {
		t.Fatalf("presign: %q err %v", url, err)
	}

	ok, err := store.Delete(ctx, "PO-1_devices.csv")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = store.Delete(ctx, "PO-1_devices.csv")
	if err != nil || ok {
		t.Fatalf("double delete must report missing: ok=%v err=%v", ok, err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../escape", "a/../../escape", "/abs"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
	clean, err := sanitizeKey("orders/PO-1_devices.csv")
	if err != nil || clean != "orders/PO-1_devices.csv" {
		t.Fatalf("unexpected sanitize result %q err %v", clean, err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("LABELCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("LABELCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
