package evolution

import (
	"testing"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

func candidatos(nomes ...string) []*model.CandidatoGrupo {
	out := make([]*model.CandidatoGrupo, 0, len(nomes))
	for i, nome := range nomes {
		out = append(out, &model.CandidatoGrupo{
			NomeGrupo:      nome,
			GrupoIDExterno: nome + "@g.us",
			Participantes:  i + 1,
		})
	}
	return out
}

func TestGroupCache_HitWithinTTL(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	cache := NewGroupCache(300 * time.Second)
	cache.now = func() time.Time { return now }

	cache.Set("inst-1", "usuario-1", candidatos("家族", "仕事"))

	// 299秒後: 鮮度内
	now = now.Add(299 * time.Second)
	got, ok := cache.Get("inst-1", "usuario-1")
	if !ok {
		t.Fatal("expected cache hit within TTL")
	}
	if len(got) != 2 || got[0].NomeGrupo != "家族" {
		t.Errorf("unexpected cached value: %+v", got)
	}
}

func TestGroupCache_MissAtTTL(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	cache := NewGroupCache(300 * time.Second)
	cache.now = func() time.Time { return now }

	cache.Set("inst-1", "usuario-1", candidatos("家族"))

	// ちょうどTTL経過はミス扱い
	now = now.Add(300 * time.Second)
	if _, ok := cache.Get("inst-1", "usuario-1"); ok {
		t.Error("expected cache miss at exactly TTL")
	}
}

func TestGroupCache_MissForUnknownKey(t *testing.T) {
	cache := NewGroupCache(0)
	if _, ok := cache.Get("inst-1", "usuario-1"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestGroupCache_SetOverwrites(t *testing.T) {
	cache := NewGroupCache(300 * time.Second)

	cache.Set("inst-1", "usuario-1", candidatos("旧"))
	cache.Set("inst-1", "usuario-1", candidatos("新1", "新2"))

	got, ok := cache.Get("inst-1", "usuario-1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 || got[0].NomeGrupo != "新1" {
		t.Errorf("expected overwritten value, got %+v", got)
	}
}

// 同一インスタンス名でもユーザーが異なればキャッシュを共有しない。
// 別ユーザーでのサインイン直後に他人のグループ一覧を見せないため。
func TestGroupCache_KeyIncludesUsuario(t *testing.T) {
	cache := NewGroupCache(300 * time.Second)

	cache.Set("inst-1", "usuario-A", candidatos("Aのグループ"))

	if _, ok := cache.Get("inst-1", "usuario-B"); ok {
		t.Error("usuario-B must not see usuario-A's cached groups")
	}

	got, ok := cache.Get("inst-1", "usuario-A")
	if !ok || got[0].NomeGrupo != "Aのグループ" {
		t.Error("usuario-A's cache should be intact")
	}
}

func TestGroupCache_ZeroTTL_UsesDefault(t *testing.T) {
	cache := NewGroupCache(0)
	if cache.ttl != defaultCacheTTL {
		t.Errorf("ttl = %v, want %v", cache.ttl, defaultCacheTTL)
	}
}

func TestGroupCache_EmptyListIsCacheable(t *testing.T) {
	cache := NewGroupCache(300 * time.Second)

	cache.Set("inst-1", "usuario-1", []*model.CandidatoGrupo{})

	got, ok := cache.Get("inst-1", "usuario-1")
	if !ok {
		t.Fatal("empty list should still be a cache hit")
	}
	if len(got) != 0 {
		t.Errorf("expected empty list, got %+v", got)
	}
}
