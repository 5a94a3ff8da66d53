package cache

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestMemCacheMatchAfterPut(t *testing.T) {
	c := NewMemCache()
	if err := c.Put("static-v1", "GET:/index.html", []byte("Hello world")); err != nil {
		t.Fatal(err)
	}

	bts, ok, err := c.Match("static-v1", "GET:/index.html")
	if err != nil || !ok {
		t.Fatalf("Match returned ok=%v err=%v", ok, err)
	}
	if string(bts) != "Hello world" {
		t.Fatalf("Bytes are %s", bts)
	}
	if _, ok, _ := c.Match("static-v1", "GET:/missing"); ok {
		t.Fatal("Match hit for a missing key")
	}
	if _, ok, _ := c.Match("other", "GET:/index.html"); ok {
		t.Fatal("Match hit in the wrong cache")
	}
}

func TestMemCacheKeysOldestWriteFirst(t *testing.T) {
	c := NewMemCache()
	c.Put("audio-v1", "a", []byte("1"))
	c.Put("audio-v1", "b", []byte("2"))
	c.Put("audio-v1", "c", []byte("3"))

	keys, err := c.Keys("audio-v1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
		t.Fatalf("Keys are %v", keys)
	}

	// overwriting refreshes the write time
	c.Put("audio-v1", "a", []byte("1 again"))
	keys, _ = c.Keys("audio-v1")
	if !reflect.DeepEqual(keys, []string{"b", "c", "a"}) {
		t.Fatalf("Keys after overwrite are %v", keys)
	}
}

func TestMemCacheDelete(t *testing.T) {
	c := NewMemCache()
	c.Put("static-v1", "a", []byte("1"))
	c.Put("static-v1", "b", []byte("2"))

	if err := c.Delete("static-v1", "a"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Match("static-v1", "a"); ok {
		t.Fatal("Deleted entry still matches")
	}

	// a cache with no entries left disappears from Names
	c.Delete("static-v1", "b")
	names, _ := c.Names()
	if len(names) != 0 {
		t.Fatalf("Names are %v", names)
	}
}

func TestMemCacheDeleteCache(t *testing.T) {
	c := NewMemCache()
	c.Put("static-v0", "a", []byte("1"))
	c.Put("static-v1", "a", []byte("1"))

	if err := c.DeleteCache("static-v0"); err != nil {
		t.Fatal(err)
	}
	names, _ := c.Names()
	if !reflect.DeepEqual(names, []string{"static-v1"}) {
		t.Fatalf("Names are %v", names)
	}
}

func TestMemCacheUsage(t *testing.T) {
	c := NewMemCache()
	c.Put("static-v1", "a", []byte("12345"))
	c.Put("audio-v1", "b", []byte("1234567890"))

	usage, err := c.Usage()
	if err != nil {
		t.Fatal(err)
	}
	if usage != 15 {
		t.Fatalf("Usage is %d", usage)
	}
}

func TestSQLiteCache(t *testing.T) {
	c := NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	c.Put("audio-v1", "a", []byte("1"))
	c.Put("audio-v1", "b", []byte("22"))
	c.Put("static-v0", "c", []byte("333"))

	bts, ok, err := c.Match("audio-v1", "a")
	if err != nil || !ok || string(bts) != "1" {
		t.Fatalf("Match returned %s ok=%v err=%v", bts, ok, err)
	}
	keys, err := c.Keys("audio-v1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Fatalf("Keys are %v", keys)
	}
	names, err := c.Names()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(names, []string{"audio-v1", "static-v0"}) {
		t.Fatalf("Names are %v", names)
	}
	usage, err := c.Usage()
	if err != nil {
		t.Fatal(err)
	}
	if usage != 6 {
		t.Fatalf("Usage is %d", usage)
	}

	if err := c.DeleteCache("static-v0"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Match("static-v0", "c"); ok {
		t.Fatal("Entry survived DeleteCache")
	}
}
