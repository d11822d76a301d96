package domain

import "testing"

func TestPromptStore_Apply(t *testing.T) {
	store := NewPromptStore([]string{"a", "b", "c"})

	t.Run("Applyで書き換えた内容がGetとSliceの両方から見えること", func(t *testing.T) {
		if err := store.Apply(2, "revised"); err != nil {
			t.Fatalf("Apply失敗: %v", err)
		}
		got, err := store.Get(2)
		if err != nil {
			t.Fatalf("Get失敗: %v", err)
		}
		if got != "revised" {
			t.Errorf("期待値 'revised', 実際の値 '%s'", got)
		}

		batch, err := store.Slice(1, 3)
		if err != nil {
			t.Fatalf("Slice失敗: %v", err)
		}
		if batch[1] != "revised" {
			t.Errorf("Sliceが改訂後のプロンプトを返しませんでした: %v", batch)
		}
	})

	t.Run("範囲外インデックスでエラーになること", func(t *testing.T) {
		if err := store.Apply(0, "x"); err == nil {
			t.Error("index=0 でエラーが発生しませんでした")
		}
		if err := store.Apply(4, "x"); err == nil {
			t.Error("index=4 でエラーが発生しませんでした")
		}
		if _, err := store.Get(4); err == nil {
			t.Error("Get(4) でエラーが発生しませんでした")
		}
	})

	t.Run("元のスライスを書き換えてもストアに影響しないこと", func(t *testing.T) {
		src := []string{"p1", "p2"}
		s := NewPromptStore(src)
		src[0] = "mutated"
		got, _ := s.Get(1)
		if got != "p1" {
			t.Errorf("防御的コピーが行われていません: %s", got)
		}
	})
}

func TestPromptStore_Slice(t *testing.T) {
	store := NewPromptStore([]string{"a", "b", "c", "d"})

	batch, err := store.Slice(2, 4)
	if err != nil {
		t.Fatalf("Slice失敗: %v", err)
	}
	if len(batch) != 3 || batch[0] != "b" || batch[2] != "d" {
		t.Errorf("期待値 [b c d], 実際の値 %v", batch)
	}

	if _, err := store.Slice(3, 2); err == nil {
		t.Error("from > to でエラーが発生しませんでした")
	}
	if _, err := store.Slice(0, 2); err == nil {
		t.Error("from=0 でエラーが発生しませんでした")
	}
}
