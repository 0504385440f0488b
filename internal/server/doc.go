// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动，Shutdown 在超时内排空请求，
WaitForShutdown 等待 SIGINT/SIGTERM、上下文结束或服务异常后执行优雅关闭，
Errors 暴露异步服务错误。
*/
package server
