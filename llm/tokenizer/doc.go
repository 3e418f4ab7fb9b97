// 版权所有 2024 BiasLens Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 tokenizer 提供输入文本的 token 计数与截断，用于将正文限制在
提供者的输入预算内。

ForModel 优先使用 tiktoken 编码（按模型前缀选择 o200k_base 或
cl100k_base）。编码数据通过 Preload 在请求路径之外加载，加载完成前
或加载失败时退回到基于字符数的估算器，计数与截断从不阻塞。
*/
package tokenizer
