package memory

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html></html>")
	uri, err := store.PutObject(context.Background(), "snapshots/someone/abc.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://snapshots/someone/abc.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'

	obj, ok := store.Get("snapshots/someone/abc.html")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(obj.Data) != "<html></html>" || obj.ContentType != "text/html" {
		t.Fatalf("unexpected stored object %+v", obj)
	}
	obj.Data[0] = 'Y'
	again, _ := store.Get("snapshots/someone/abc.html")
	if string(again.Data) != "<html></html>" {
		t.Fatal("expected Get to return a copy")
	}
	if paths := store.Paths(); len(paths) != 1 {
		t.Fatalf("expected one path, got %v", paths)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), "", "text/html", strings.NewReader("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
}
