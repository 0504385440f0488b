// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理共享的 Redis 连接。

Manager 负责连接生命周期：初始化时 Ping 校验、后台定时健康检查、Close 时停止
检查并释放连接。[Manager.Client] 把同一个客户端交给护栏会话存储与对话记忆的
Redis 实现；Get/Set/GetJSON/SetJSON 带统一键前缀，用作行情数据的二级缓存。

未命中返回 [ErrCacheMiss]，可用 [IsCacheMiss] 判断。
*/
package cache
