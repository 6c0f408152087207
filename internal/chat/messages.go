package chat

import (
	"strconv"
	"strings"
)

// 客户端识别的带内控制令牌。
const (
	// TokenForceExit 指示客户端立即断开连接。
	TokenForceExit = "FORCE_EXIT"

	// TokenNotChat 指示客户端清除“正在与某人聊天”的提示装饰。
	TokenNotChat = "NOT_CHAT"

	// tokenInChatPrefix 加上对端用户名后，指示客户端在本地输入提示前
	// 显示该用户名。
	tokenInChatPrefix = "IN_CHAT:"
)

// TokenInChat 构造进入私聊时下发的提示令牌。
func TokenInChat(peerName string) string {
	return tokenInChatPrefix + peerName
}

// ParseInChatToken 判断负载是否为 IN_CHAT 令牌，是则返回其中的用户名。
func ParseInChatToken(payload string) (string, bool) {
	if !strings.HasPrefix(payload, tokenInChatPrefix) {
		return "", false
	}
	return payload[len(tokenInChatPrefix):], true
}

// 下发给客户端的全部文案。
// 客户端是纯透传终端，这里的文本就是用户最终看到的内容。
const (
	msgWelcome = "\nWelcome to the chat server!\n\nEnter a username for yourself: "

	msgMenu = "\n\n1. List users\n2. Chat\n3. Group Chat\n4. Exit\n\nEnter your choice: "

	msgLoginSuccess = "Login successful."

	msgNameEmpty = "Error: Username cannot be empty. Please choose another: "
	msgNameTaken = "Error: Username already taken. Please choose another: "

	msgGeneralError = "\nInvalid input, try again\n"

	msgSingleUserWarning = "\nYou are the only person in this server\n"

	msgChatRequestPrompt = "\nEnter the name of the person you would like to chat with: "

	msgChatEnded = "chat session ended"

	msgGroupChatHeader = "\n\n**** Group Chat ****\n\n"
)

func msgRequestWaiting(targetName string) string {
	return "\nWaiting for " + targetName + " to accept your invitation. Please wait.\n"
}

func msgChatRequest(requesterName string) string {
	return "\nUser " + requesterName + " is requesting to chat with you. Y/N?"
}

func msgTargetUnavailable(name string) string {
	return "\nUser " + name + " is not available.\n"
}

func msgChatHeader(peerName string) string {
	return "\n\n**** Private Chat with " + peerName + " ****\n\n"
}

func msgChatRejected(rejecterName string) string {
	return "\n " + rejecterName + " has denied the chat."
}

func msgGroupChatJoin(name string) string {
	return "\n*** " + name + " has joined the chat ***\n"
}

func msgChatMessage(sender, text string) string {
	return sender + ": " + text
}

// renderDirectory 渲染用户目录：表头加上每个已登录成员一行。
func renderDirectory(views []MemberView) string {
	var b strings.Builder

	b.WriteString("\n\n------------------------------------------------------------------------------------\n")
	b.WriteString("\tusername\tavailability\t\tlogin status\t\n")
	b.WriteString("------------------------------------------------------------------------------------\n")

	for _, v := range views {
		if !v.Authenticated {
			continue
		}
		b.WriteString("\t")
		b.WriteString(v.Username)
		b.WriteString("\t\t")
		b.WriteString(v.Availability)
		b.WriteString("\t\t")
		b.WriteString(strconv.FormatBool(v.Authenticated))
		b.WriteString("\n")
	}

	return b.String()
}
