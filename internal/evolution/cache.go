package evolution

import (
	"sync"
	"time"

	"github.com/intellizapp/resumefy/internal/model"
)

// defaultCacheTTL はグループ一覧キャッシュの鮮度上限。
const defaultCacheTTL = 300 * time.Second

// cacheEntry はキャッシュされたグループ一覧と取得時刻。
type cacheEntry struct {
	candidatos []*model.CandidatoGrupo
	fetchedAt  time.Time
}

// GroupCache は(インスタンス名, ユーザー)をキーとするグループ一覧の
// 鮮度キャッシュ。TTL超過の読み出しはミスとして扱い、書き込みは無条件に
// 上書きする（最終書き込み優先）。データは助言的なものであり、課金や枠の
// 判断に使ってはならない。
type GroupCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time // テストで差し替える
}

// NewGroupCache はGroupCacheを生成する。ttlが0なら既定の300秒を使う。
func NewGroupCache(ttl time.Duration) *GroupCache {
	if ttl == 0 {
		ttl = defaultCacheTTL
	}
	return &GroupCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// cacheKey はインスタンス名とユーザーIDからキャッシュキーを構成する。
// 資格情報の切り替え（別ユーザーでのサインイン）で旧ユーザーのキャッシュを
// 引き当てないよう、キーには必ずユーザーを含める。
func cacheKey(instancia, usuarioID string) string {
	return instancia + "\x00" + usuarioID
}

// Get は鮮度内のキャッシュ値を返す。ミスの場合は(nil, false)。
func (c *GroupCache) Get(instancia, usuarioID string) ([]*model.CandidatoGrupo, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey(instancia, usuarioID)]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		return nil, false
	}
	return entry.candidatos, true
}

// Set はキャッシュ値を無条件に上書きする。
func (c *GroupCache) Set(instancia, usuarioID string, candidatos []*model.CandidatoGrupo) {
	c.mu.Lock()
	c.entries[cacheKey(instancia, usuarioID)] = cacheEntry{
		candidatos: candidatos,
		fetchedAt:  c.now(),
	}
	c.mu.Unlock()
}
