package storage

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}

	payload := "release payload"
	if err := b.Write(ctx, "releases/1/2/asset", strings.NewReader(payload), int64(len(payload)), "application/zip"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ok, err := b.Has(ctx, "releases/1/2/asset")
	if err != nil || !ok {
		t.Fatalf("Has = %v, %v; want true, nil", ok, err)
	}

	rc, err := b.Read(ctx, "releases/1/2/asset")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != payload {
		t.Fatalf("Read = %q, want %q", data, payload)
	}

	if err := b.Delete(ctx, "releases/1/2/asset"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, "releases/1/2/asset"); err != nil {
		t.Fatalf("Delete missing: %v, want nil", err)
	}
	if _, err := b.Read(ctx, "releases/1/2/asset"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read after delete error = %v, want ErrNotFound", err)
	}
}

func TestLocalBackendList(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	for _, key := range []string{"releases/1/a", "releases/1/b", "releases/2/c"} {
		if err := b.Write(ctx, key, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Write(%s): %v", key, err)
		}
	}

	got, err := b.List(ctx, "releases/1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(got)
	want := []string{"releases/1/a", "releases/1/b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("List = %#v, want %#v", got, want)
	}

	missing, err := b.List(ctx, "releases/9")
	if err != nil || missing != nil {
		t.Fatalf("List(missing) = %#v, %v; want nil, nil", missing, err)
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "releases/1/a", want: "releases/1/a"},
		{key: "/releases/1/a", want: "releases/1/a"},
		{key: "", wantErr: true},
		{key: "../etc/passwd", wantErr: true},
		{key: "releases/../../x", wantErr: true},
		{key: "releases//a", wantErr: true},
	}
	for _, tc := range tests {
		got, err := cleanKey(tc.key)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("cleanKey(%q) error = %v, want ErrInvalidKey", tc.key, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("cleanKey(%q) = %q, %v; want %q", tc.key, got, err, tc.want)
		}
	}
}

func TestReleaseAssetKeyIsUnique(t *testing.T) {
	a := ReleaseAssetKey(1, 2)
	b := ReleaseAssetKey(1, 2)
	if a == b {
		t.Fatalf("ReleaseAssetKey returned duplicate key %q", a)
	}
	if !strings.HasPrefix(a, "releases/1/2/") {
		t.Fatalf("ReleaseAssetKey = %q, want releases/1/2/ prefix", a)
	}
}
