package rules

import (
	"os"
	"testing"
)

func TestStoreLoadAndReload(t *testing.T) {
	path := writeRuleFile(t, `Grupo_Origen,Grupo_Destino,Restriccion_1,Restriccion_2,Restriccion_3
Sales,Ops,,,
`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if s.Active().Len() != 1 {
		t.Fatalf("active rules = %d, want 1", s.Active().Len())
	}

	if err := os.WriteFile(path, []byte(`Grupo_Origen,Grupo_Destino,Restriccion_1,Restriccion_2,Restriccion_3
Sales,Ops,,,
Support,Archive,,,
`), 0o644); err != nil {
		t.Fatal(err)
	}
	s.Reload()
	if s.Active().Len() != 2 {
		t.Fatalf("active rules after reload = %d, want 2", s.Active().Len())
	}
}

func TestStoreLoadFailsWithoutValidRules(t *testing.T) {
	path := writeRuleFile(t, `Grupo_Origen,Grupo_Destino,Restriccion_1,Restriccion_2,Restriccion_3
,,urgent,,
`)
	s := NewStore(path)
	if err := s.Load(); err == nil {
		t.Fatal("expected error when no row yields a valid rule")
	}
}

func TestStoreReloadKeepsPreviousOnFailure(t *testing.T) {
	path := writeRuleFile(t, `Grupo_Origen,Grupo_Destino,Restriccion_1,Restriccion_2,Restriccion_3
Sales,Ops,,,
`)
	s := NewStore(path)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	before := s.Active()

	// Truncate to a file with no valid rules; the old snapshot must survive.
	if err := os.WriteFile(path, []byte("Grupo_Origen,Grupo_Destino\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s.Reload()
	if s.Active() != before {
		t.Error("failed reload replaced the active snapshot")
	}

	// Same for an unreadable file.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	s.Reload()
	if s.Active() != before {
		t.Error("reload of a missing file replaced the active snapshot")
	}
}
