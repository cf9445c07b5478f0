package storage

import "sync"

// generation отслеживает инвалидации кеша внутри процесса. Чтение, которое
// пересеклось с изменяющим запросом, не должно оставлять свой результат в кеше:
// строки могли быть прочитаны до коммита, а Clear уже выполнен.
type generation struct {
	mu       sync.Mutex
	gen      uint64
	inflight int
}

// snapshot номер поколения на момент начала чтения.
func (g *generation) snapshot() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

// beginWrite вызывается до выполнения изменяющего запроса.
func (g *generation) beginWrite() {
	g.mu.Lock()
	g.inflight++
	g.gen++
	g.mu.Unlock()
}

// endWrite вызывается после очистки кеша.
func (g *generation) endWrite() {
	g.mu.Lock()
	g.inflight--
	g.gen++
	g.mu.Unlock()
}

// stable истинно, если с snapshot не начался и не завершился ни один
// изменяющий запрос и сейчас ни один не выполняется.
func (g *generation) stable(snapshot uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen == snapshot && g.inflight == 0
}
