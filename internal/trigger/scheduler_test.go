package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/nao1215/chatsync/pkg/event"
)

// TestSchedulerAdd はcron式の検証を確認する。
func TestSchedulerAdd(t *testing.T) {
	t.Parallel()

	s := NewScheduler(NewAdapter(), time.UTC)
	if err := s.Add("cleanExpiredStories", "0 * * * *"); err != nil {
		t.Errorf("正しいcron式でエラーが発生: %v", err)
	}
	if err := s.Add("broken", "every hour"); err == nil {
		t.Error("不正なcron式でエラーが返されなかった")
	}
}

// TestSchedulerRun はスケジュールの起動と停止を検証する。
func TestSchedulerRun(t *testing.T) {
	t.Parallel()

	t.Run("予定時刻ごとにハンドラを起動し、Stopで停止すること", func(t *testing.T) {
		t.Parallel()

		fired := make(chan event.TimerFired, 8)
		a := NewAdapter()
		a.OnSchedule("cleanExpiredStories", HandlerFunc[event.TimerFired](func(_ context.Context, ev event.TimerFired) error {
			select {
			case fired <- ev:
			default:
			}
			return nil
		}))

		loc, err := time.LoadLocation("Asia/Tokyo")
		if err != nil {
			t.Fatalf("タイムゾーンの読み込みに失敗: %v", err)
		}
		s := NewScheduler(a, loc)
		s.next = func(string, time.Time) (time.Time, error) {
			return time.Now().Add(10 * time.Millisecond), nil
		}
		if err := s.Add("cleanExpiredStories", "0 * * * *"); err != nil {
			t.Fatalf("Add()でエラーが発生: %v", err)
		}

		s.Start(t.Context())
		for i := range 2 {
			select {
			case ev := <-fired:
				if ev.Schedule != "0 * * * *" || ev.TimeZone != "Asia/Tokyo" {
					t.Errorf("%d回目のイベント = %+v", i+1, ev)
				}
			case <-time.After(5 * time.Second):
				t.Fatalf("%d回目の起動がタイムアウトした", i+1)
			}
		}
		s.Stop()

		// 停止後は起動されない
		for len(fired) > 0 {
			<-fired
		}
		time.Sleep(50 * time.Millisecond)
		if len(fired) != 0 {
			t.Error("Stop()後にハンドラが起動された")
		}
	})

	t.Run("親コンテキストの終了で停止すること", func(t *testing.T) {
		t.Parallel()

		s := NewScheduler(NewAdapter(), nil)
		if err := s.Add("cleanExpiredStories", "0 * * * *"); err != nil {
			t.Fatalf("Add()でエラーが発生: %v", err)
		}
		ctx, cancel := context.WithCancel(t.Context())
		s.Start(ctx)
		cancel()

		done := make(chan struct{})
		go func() {
			s.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Stop()がタイムアウトした")
		}
	})
}
