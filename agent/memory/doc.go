// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 memory 保存每个智能体在每个对话线程中的历史轮次。

# 概述

记忆按 (agent, thread) 隔离：同一线程内不同智能体互不可见，
同一智能体的不同线程也互不可见。每个线程只保留最近 MaxTurns 轮。

# 实现

  - [InMemoryStore]：进程内实现，读时复制，支持线程 TTL 与线程数上限
  - [RedisStore]：以 Redis 列表保存轮次，适合多实例共享会话
*/
package memory
