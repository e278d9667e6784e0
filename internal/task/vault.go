package task

import "sync"

// KeyVault 在内存中保管任务对应的签名材料。
// 私钥永远不会写入任务存储或消息队列，进程重启后未完成任务需要用户重新提交。
type KeyVault struct {
	mu   sync.Mutex
	keys map[string]string
}

// NewKeyVault 创建一个空的保险箱。
func NewKeyVault() *KeyVault {
	return &KeyVault{keys: make(map[string]string)}
}

// Put 存入任务的签名材料。
func (v *KeyVault) Put(taskID, privateKey string) {
	v.mu.Lock()
	v.keys[taskID] = privateKey
	v.mu.Unlock()
}

// Get 取出签名材料，不存在时返回 false。
func (v *KeyVault) Get(taskID string) (string, bool) {
	v.mu.Lock()
	key, ok := v.keys[taskID]
	v.mu.Unlock()
	return key, ok
}

// Delete 清除任务的签名材料。
func (v *KeyVault) Delete(taskID string) {
	v.mu.Lock()
	delete(v.keys, taskID)
	v.mu.Unlock()
}
