// Copyright 2026 BiasLens Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package testutil 提供 BiasLens 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertScores / AssertKind
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（分析后端），支持 Builder 模式、
    错误注入、延迟与健康状态切换
  - testutil/fixtures: 示例文章与分析结果

# 使用示例

	ctx := testutil.TestContext(t)
	p := mocks.NewMockProvider("primary").WithError(llm.NewError(llm.KindNetwork, "primary", "down", nil))
	_, err := p.Analyze(ctx, fixtures.Article())
	testutil.AssertKind(t, err, llm.KindNetwork)
*/
package testutil
