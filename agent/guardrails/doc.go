// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 guardrails 为金融问答助手提供输入与输出合规防护。

# 概述

[Engine] 是唯一入口，负责：

- 输入校验：空白、长度、会话频率限制、规范化、禁止话题、恶意模式
- 输出校验：空回复检查、免责声明追加、指令性措辞软化
- 意图检查：可选的模型辅助判断，失败时放行
- 用量统计：单会话与全局统计

输入校验严格短路，任一环节失败都直接返回面向用户的提示语，
只有通过全部检查的查询才会计入会话配额。

# 校验器

规则以 [Validator] 实现，由 [ValidatorChain] 按优先级执行：

  - [EmptyValidator]、[LengthValidator]：作用于原始输入
  - [ProhibitedTopicValidator]、[MaliciousPatternValidator]：作用于 [Sanitize] 之后的文本

# 会话存储

[SessionStore] 由调用方注入，引擎本身不持有全局状态：

  - [MemoryStore]：分片加锁的进程内实现，支持闲置淘汰与会话数上限
  - [RedisStore]：每会话一个有序集合，适合多实例部署

存储出错时引擎放行查询并记录日志。

# 审计

拒绝事件写入 [AuditLogger]，只保存内容哈希：

  - [MemoryAuditLogger]：有界内存实现
  - [GormAuditLogger]：写入 guardrail_audit_logs 表
*/
package guardrails
