package presence

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func TestOnlineThenOnlineDoesNotPair(t *testing.T) {
	r := NewRegistry()

	first := r.RegisterOnline("c-alice", "alice")
	if first.Match != nil {
		t.Fatalf("unexpected match %+v", first.Match)
	}
	second := r.RegisterOnline("c-bob", "bob")
	if second.Match != nil {
		t.Fatalf("unexpected match %+v", second.Match)
	}

	want := []string{"alice", "bob"}
	if !reflect.DeepEqual(second.Online, want) {
		t.Fatalf("online = %v, want %v", second.Online, want)
	}
	if _, ok := r.Pairing("alice"); ok {
		t.Fatal("alice should not be paired")
	}
}

func TestOnlineUserPairsWithOfflineCandidate(t *testing.T) {
	r := NewRegistry()

	r.RegisterOnline("c-alice", "alice")
	r.RegisterOffline("c-alice", "alice")
	got := r.RegisterOnline("c-bob", "bob")

	if got.Match == nil {
		t.Fatal("expected a match")
	}
	want := Match{User: "bob", UserConn: "c-bob", Partner: "alice", PartnerConn: "c-alice"}
	if *got.Match != want {
		t.Fatalf("match = %+v, want %+v", *got.Match, want)
	}

	if _, ok := r.LookupConnection("alice", PoolOffline); ok {
		t.Fatal("alice should have left the offline pool")
	}
	if conn, ok := r.Resolve("alice"); !ok || conn != "c-alice" {
		t.Fatalf("resolve alice = %q, %v", conn, ok)
	}
	assertMutual(t, r, "alice", "bob")
	if !reflect.DeepEqual(got.Online, []string{"bob"}) {
		t.Fatalf("online = %v, want [bob]", got.Online)
	}
}

func TestOfflineUserPairsWithOnlineCandidate(t *testing.T) {
	r := NewRegistry()

	r.RegisterOnline("c-alice", "alice")
	got := r.RegisterOffline("c-bob", "bob")

	if got.Match == nil || got.Match.Partner != "alice" {
		t.Fatalf("match = %+v, want partner alice", got.Match)
	}
	assertMutual(t, r, "alice", "bob")
	if len(got.Online) != 0 {
		t.Fatalf("online = %v, want empty", got.Online)
	}
}

func TestPairingPicksLongestWaitingCandidate(t *testing.T) {
	r := NewRegistry()

	r.RegisterOffline("c-1", "first")
	r.RegisterOffline("c-2", "second")
	r.RegisterOffline("c-3", "third")

	got := r.RegisterOnline("c-x", "xavier")
	if got.Match == nil || got.Match.Partner != "first" {
		t.Fatalf("match = %+v, want partner first", got.Match)
	}
	got = r.RegisterOnline("c-y", "yara")
	if got.Match == nil || got.Match.Partner != "second" {
		t.Fatalf("match = %+v, want partner second", got.Match)
	}
}

func TestPairedUserDoesNotPairAgain(t *testing.T) {
	r := NewRegistry()

	r.RegisterOffline("c-alice", "alice")
	r.RegisterOnline("c-bob", "bob")
	r.RegisterOffline("c-carol", "carol")

	got := r.RegisterOnline("c-bob", "bob")
	if got.Match != nil {
		t.Fatalf("paired user formed another match: %+v", got.Match)
	}
	assertMutual(t, r, "alice", "bob")
	if _, ok := r.Pairing("carol"); ok {
		t.Fatal("carol should be unpaired")
	}
}

func TestDuplicateOnlineIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.RegisterOnline("c-alice", "alice")
	got := r.RegisterOnline("c-alice", "alice")

	if got.Match != nil {
		t.Fatalf("self pairing: %+v", got.Match)
	}
	if !reflect.DeepEqual(got.Online, []string{"alice"}) {
		t.Fatalf("online = %v, want [alice]", got.Online)
	}
	if stats := r.Stats(); stats.Online != 1 || stats.Offline != 0 || stats.Pairings != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestSameUserOnAndOffDoesNotSelfPair(t *testing.T) {
	r := NewRegistry()

	r.RegisterOffline("c-alice", "alice")
	got := r.RegisterOnline("c-alice", "alice")
	if got.Match != nil {
		t.Fatalf("self pairing: %+v", got.Match)
	}
	if conn, ok := r.LookupConnection("alice", PoolOnline); !ok || conn != "c-alice" {
		t.Fatalf("lookup online = %q, %v", conn, ok)
	}
	if _, ok := r.LookupConnection("alice", PoolOffline); ok {
		t.Fatal("alice must not sit in both pools")
	}
}

func TestRemoveDissolvesPairingWithoutRepair(t *testing.T) {
	r := NewRegistry()

	r.RegisterOffline("c-alice", "alice")
	r.RegisterOnline("c-bob", "bob")
	r.RegisterOffline("c-carol", "carol")

	removal, ok := r.Remove("c-alice")
	if !ok {
		t.Fatal("expected removal")
	}
	if removal.Username != "alice" || removal.Partner != "bob" {
		t.Fatalf("removal = %+v", removal)
	}
	if _, ok := r.Pairing("bob"); ok {
		t.Fatal("bob should be unpaired after alice left")
	}
	if _, ok := r.Pairing("carol"); ok {
		t.Fatal("carol must not be paired implicitly")
	}
	if _, ok := r.LookupUsername("c-alice"); ok {
		t.Fatal("c-alice should be unbound")
	}

	// bob's next transition can pair again.
	got := r.RegisterOnline("c-bob", "bob")
	if got.Match == nil || got.Match.Partner != "carol" {
		t.Fatalf("match = %+v, want partner carol", got.Match)
	}
}

func TestRemoveUnknownConnection(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Remove("nobody"); ok {
		t.Fatal("expected no removal for unidentified connection")
	}
}

func TestConnectionSwitchesUsername(t *testing.T) {
	r := NewRegistry()

	r.RegisterOffline("c-1", "alice")
	r.RegisterOnline("c-bob", "bob")
	switched := r.RegisterOnline("c-1", "alicia")

	if switched.Dropped != "alice" || switched.DroppedPartner != "bob" {
		t.Fatalf("dropped = %q partner %q, want alice and bob", switched.Dropped, switched.DroppedPartner)
	}
	if _, ok := r.Pairing("bob"); ok {
		t.Fatal("bob should be unpaired")
	}
	if username, _ := r.LookupUsername("c-1"); username != "alicia" {
		t.Fatalf("username = %q, want alicia", username)
	}
	if _, ok := r.LookupConnection("alice", PoolAny); ok {
		t.Fatal("alice should be gone")
	}
}

func TestUsernameMovesToNewConnection(t *testing.T) {
	r := NewRegistry()

	r.RegisterOnline("c-old", "alice")
	if moved := r.RegisterOnline("c-new", "alice"); moved.Dropped != "" {
		t.Fatalf("dropped = %q, want none", moved.Dropped)
	}

	if _, ok := r.LookupUsername("c-old"); ok {
		t.Fatal("old connection should be unbound")
	}
	if conn, ok := r.LookupConnection("alice", PoolAny); !ok || conn != "c-new" {
		t.Fatalf("lookup = %q, %v", conn, ok)
	}
	if _, ok := r.Remove("c-old"); ok {
		t.Fatal("removing the stale connection must not drop alice")
	}
}

func TestResolveIgnoresUnpairedOfflineUser(t *testing.T) {
	r := NewRegistry()
	r.RegisterOffline("c-dave", "dave")
	if _, ok := r.Resolve("dave"); ok {
		t.Fatal("offline unpaired user should not resolve")
	}
	if _, ok := r.Resolve("ghost"); ok {
		t.Fatal("unknown user should not resolve")
	}
}

func TestConcurrentTransitionsKeepPairingsMutual(t *testing.T) {
	r := NewRegistry()

	const users = 64
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", i)
			conn := "c-" + name
			if i%2 == 0 {
				r.RegisterOnline(conn, name)
				r.RegisterOffline(conn, name)
			} else {
				r.RegisterOffline(conn, name)
				r.RegisterOnline(conn, name)
			}
			if i%5 == 0 {
				r.Remove(conn)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]string)
	for i := 0; i < users; i++ {
		name := fmt.Sprintf("user-%d", i)
		p, ok := r.Pairing(name)
		if !ok {
			continue
		}
		if p.Partner == name {
			t.Fatalf("%s paired with itself", name)
		}
		back, ok := r.Pairing(p.Partner)
		if !ok || back.Partner != name {
			t.Fatalf("pairing %s -> %s is not mutual", name, p.Partner)
		}
		seen[name] = p.Partner
	}

	stats := r.Stats()
	if stats.Pairings*2 != len(seen) {
		t.Fatalf("stats pairings = %d, paired users = %d", stats.Pairings, len(seen))
	}

	online := r.Online()
	sorted := append([]string(nil), online...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			t.Fatalf("duplicate online entry %q", sorted[i])
		}
	}
}

func assertMutual(t *testing.T, r *Registry, a, b string) {
	t.Helper()
	pa, ok := r.Pairing(a)
	if !ok || pa.Partner != b {
		t.Fatalf("%s pairing = %+v, %v; want partner %s", a, pa, ok, b)
	}
	pb, ok := r.Pairing(b)
	if !ok || pb.Partner != a {
		t.Fatalf("%s pairing = %+v, %v; want partner %s", b, pb, ok, a)
	}
}
