package bus

import (
	"strconv"
	"sync/atomic"
	"testing"
)

func BenchmarkPublishSingleSubscriber(b *testing.B) {
	bus := New()
	var c int64
	_, _ = bus.Subscribe("tick", func(Event) error { atomic.AddInt64(&c, 1); return nil })
	e := NewEvent("tick", "bench")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = bus.Publish(e)
	}
}

func BenchmarkPublishWithWildcard(b *testing.B) {
	for _, subs := range []int{1, 16, 256} {
		b.Run("subs="+strconv.Itoa(subs), func(b *testing.B) {
			bus := New()
			var c int64
			for i := 0; i < subs; i++ {
				_, _ = bus.Subscribe("tick", func(Event) error { atomic.AddInt64(&c, 1); return nil })
			}
			_, _ = bus.SubscribeAll(func(Event) error { atomic.AddInt64(&c, 1); return nil })
			e := NewEvent("tick", "bench", 1)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = bus.Publish(e)
			}
		})
	}
}
