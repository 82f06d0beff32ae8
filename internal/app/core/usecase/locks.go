package usecase

import "sync"

// lockTable 每帳號互斥鎖登錄表
// 鎖在第一次被引用時建立，之後沿用整個行程生命週期
// 讀查詢不走這裡 只有會變動餘額的操作需要取鎖
type lockTable struct {
	locks sync.Map // map[string]*sync.Mutex
}

// get 取得（必要時建立）指定帳號的鎖
func (t *lockTable) get(number string) *sync.Mutex {
	if v, ok := t.locks.Load(number); ok {
		return v.(*sync.Mutex)
	}
	v, _ := t.locks.LoadOrStore(number, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// acquire 鎖定單一帳戶
func (t *lockTable) acquire(number string) {
	t.get(number).Lock()
}

// release 解鎖單一帳戶
func (t *lockTable) release(number string) {
	t.get(number).Unlock()
}

// orderPair 依字典序排列兩個帳號
// 所有雙帳戶操作一律以同一全域順序取鎖，杜絕反向轉帳間的循環等待
func orderPair(a, b string) (first, second string) {
	if a < b {
		return a, b
	}
	return b, a
}

// acquirePair 依固定順序鎖定兩個帳戶
func (t *lockTable) acquirePair(a, b string) {
	first, second := orderPair(a, b)
	t.acquire(first)
	t.acquire(second)
}

// releasePair 解鎖兩個帳戶 順序與取鎖相反
func (t *lockTable) releasePair(a, b string) {
	first, second := orderPair(a, b)
	t.release(second)
	t.release(first)
}
