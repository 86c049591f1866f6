// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供统一的文本嵌入接口与 OpenAI 实现，
为语义匹配层把枚举候选值与非法值转换为向量。

# 核心接口

  - Provider：统一嵌入接口，定义 Embed、EmbedQuery、EmbedDocuments 等方法。
  - EmbeddingRequest / EmbeddingResponse：标准化的请求与响应模型。
  - BaseProvider：公共基类，封装 HTTP 请求、错误映射与分批。

# 主要能力

  - 批量嵌入：超过 MaxBatchSize 时自动分批，结果按输入顺序对齐。
  - 维度控制：OpenAI text-embedding-3 系列支持可变维度。
  - 安全 HTTP：通过 tlsutil.SecureHTTPClient 建立安全连接。

# 使用方式

	cfg := embedding.DefaultOpenAIConfig()
	cfg.APIKey = "sk-..."
	provider := embedding.NewOpenAIProvider(cfg)

	vec, err := provider.EmbedQuery(ctx, "case_study")
	vecs, err := provider.EmbedDocuments(ctx, []string{"quiz", "exercise"})
*/
package embedding
