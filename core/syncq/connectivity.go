package syncq

import "sync"

// Connectivity 平台连通性信号：当前在线状态加变更订阅
type Connectivity interface {
	Online() bool
	// Subscribe 注册状态变更回调，返回取消订阅函数
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// ManualConnectivity 由宿主显式驱动的连通性信号，
// 桌面宿主把系统网络事件灌进来，测试直接调用 SetOnline。
type ManualConnectivity struct {
	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]func(online bool)
}

// NewManualConnectivity 创建连通性信号，初始状态由 online 指定
func NewManualConnectivity(online bool) *ManualConnectivity {
	return &ManualConnectivity{
		online: online,
		subs:   make(map[int]func(online bool)),
	}
}

// Online 返回当前在线状态
func (c *ManualConnectivity) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOnline 更新在线状态，状态变化时同步通知所有订阅者
func (c *ManualConnectivity) SetOnline(online bool) {
	c.mu.Lock()
	if c.online == online {
		c.mu.Unlock()
		return
	}
	c.online = online
	fns := make([]func(bool), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe 注册状态变更回调
func (c *ManualConnectivity) Subscribe(fn func(online bool)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}
