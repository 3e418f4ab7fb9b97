// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertScores 断言分析结果的五个数值字段
func AssertScores(t *testing.T, expected, actual *llm.AnalysisResult) {
	t.Helper()

	if expected == nil || actual == nil {
		if expected != actual {
			t.Errorf("result mismatch: expected %v, got %v", expected, actual)
		}
		return
	}
	if expected.Score != actual.Score {
		t.Errorf("score mismatch: expected %d, got %d", expected.Score, actual.Score)
	}
	if expected.Lean != actual.Lean {
		t.Errorf("lean mismatch: expected %q, got %q", expected.Lean, actual.Lean)
	}
	if expected.FactualAccuracy != actual.FactualAccuracy {
		t.Errorf("factual accuracy mismatch: expected %d, got %d", expected.FactualAccuracy, actual.FactualAccuracy)
	}
	if expected.EmotionalTone != actual.EmotionalTone {
		t.Errorf("emotional tone mismatch: expected %d, got %d", expected.EmotionalTone, actual.EmotionalTone)
	}
	if expected.Confidence != actual.Confidence {
		t.Errorf("confidence mismatch: expected %d, got %d", expected.Confidence, actual.Confidence)
	}
}

// AssertKind 断言错误的分类
func AssertKind(t *testing.T, err error, kind llm.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := llm.KindOf(err); got != kind {
		t.Errorf("error kind mismatch: expected %s, got %s (%v)", kind, got, err)
	}
}

// =============================================================================
// ⏳ 异步断言
// =============================================================================

// AssertEventuallyTrue 轮询直到条件满足或超时
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("condition not met within %v", timeout)
}

// =============================================================================
// 📦 数据工具
// =============================================================================

// MustJSON 序列化，失败时终止测试
func MustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// MustParseJSON 反序列化，失败时终止测试
func MustParseJSON[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return v
}
