package walrus

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientUploadNewlyCreated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.URL.Path != "/v1/blobs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("epochs"); got != "5" {
			t.Fatalf("unexpected epochs: %s", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "ciphertext" {
			t.Fatalf("unexpected body: %s", body)
		}
		_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-1","size":9}}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{PublisherURL: server.URL, AggregatorURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	result, err := client.Upload(context.Background(), []byte("ciphertext"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if result.BlobID != "blob-1" {
		t.Fatalf("unexpected blob id: %s", result.BlobID)
	}
	if result.Size != 9 {
		t.Fatalf("unexpected size: %d", result.Size)
	}
}

func TestClientUploadAlreadyCertified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alreadyCertified":{"blobObject":{"blobId":"blob-2","size":"42"}}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{PublisherURL: server.URL, AggregatorURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	result, err := client.Upload(context.Background(), []byte("same bytes"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if result.BlobID != "blob-2" || result.Size != 42 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientDownloadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := NewClient(Config{PublisherURL: server.URL, AggregatorURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Download(context.Background(), "missing")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	stored := map[string][]byte{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			stored["blob-rt"] = body
			_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-rt","size":3}}}`))
		case http.MethodGet:
			data, ok := stored["blob-rt"]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)
		case http.MethodHead:
			if _, ok := stored["blob-rt"]; !ok {
				w.WriteHeader(http.StatusNotFound)
			}
		}
	}))
	defer server.Close()

	client, err := NewClient(Config{PublisherURL: server.URL, AggregatorURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	ctx := context.Background()
	if _, err := client.Upload(ctx, []byte("abc")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	data, err := client.Download(ctx, "blob-rt")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("unexpected content: %s", data)
	}

	ok, err := client.Exists(ctx, "blob-rt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Upload(ctx, []byte("encrypted contacts"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	second, err := store.Upload(ctx, []byte("encrypted contacts"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if first.BlobID != second.BlobID {
		t.Fatal("identical content must map to the same blob id")
	}

	data, err := store.Download(ctx, first.BlobID)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != "encrypted contacts" {
		t.Fatalf("unexpected content: %s", data)
	}

	if _, err := store.Download(ctx, "absent"); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}

	ok, err := store.Exists(ctx, first.BlobID)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
	}
}
