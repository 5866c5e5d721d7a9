// Package cache 为解析结果提供读穿透缓存
// 只缓存成功的解析 (Handle)；“不存在”和“不可达”都不进缓存，下一次请求会重新探测。
package cache

import (
	"context"

	"climdash/pkg/storage"
)

// Cache 是解析缓存的抽象
// 缓存故障不应让解析失败：实现内部降级为未命中，因此接口不返回 error。
type Cache interface {
	Get(ctx context.Context, key string) (storage.Handle, bool)
	Set(ctx context.Context, key string, h storage.Handle)
	Delete(ctx context.Context, key string)
	// DeletePrefix 删除所有以 prefix 开头的键 (目录级失效)，返回删除的数量
	DeletePrefix(ctx context.Context, prefix string) int
}

// Nop 是不缓存任何内容的实现 (cache.ttl = 0)
type Nop struct{}

func (Nop) Get(context.Context, string) (storage.Handle, bool) { return storage.Handle{}, false }
func (Nop) Set(context.Context, string, storage.Handle)        {}
func (Nop) Delete(context.Context, string)                     {}
func (Nop) DeletePrefix(context.Context, string) int           { return 0 }
