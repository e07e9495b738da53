package commands

import "strings"

// Reply literals sent back to chat users.
const (
	PermissionDeniedMessage    = "你沒有權限使用該指令"
	CommandNotAvailableMessage = "該指令無法在此使用"
	UserNotBoundMessage        = "你尚未綁定使用者姓名"

	AuthSuccessMessage          = "已成為管理員"
	AuthFailureMessage          = "驗證失敗"
	AddAdminMessage             = "已新增管理員"
	ClearRepliesMessage         = "已清除所有回覆"
	FootprintUnavailableMessage = "無法取得最新的足跡資料"

	listUsersHeader           = "以下是目前名單上的所有使用者，若有缺漏請通知管理員新增~\n"
	addUserMessageFormat      = "已新增使用者：%s"
	removeUserMessageFormat   = "已移除使用者：%s"
	bindSuccessMessageFormat  = "已綁定使用者姓名: %s"
	bindNotFoundMessageFormat = "找不到使用者姓名: %s，請確認姓名是否正確或聯絡管理員"
	overlapMessageFormat      = "已登記%s的回覆：有足跡重疊，請留意自身健康狀況並主動告知管理員"
	noOverlapMessageFormat    = "已登記%s的回覆：無足跡重疊"

	// Easter egg for one literal non-command phrase.
	easterEggTrigger = "秉寰"
	easterEggReply   = "大佬"
)

// helpText lists commands for users and operators. The bind, quick reply and
// id entries share one line, as they always have.
var helpText = strings.Join([]string{
	"一般使用者可用指令：",
	"@help",
	"@y@name or @n@name: 回報是否重疊,不需綁定姓名",
	"@bind@name: 綁定line帳號與使用者姓名 (僅能於群組中使用)" +
		"@y or @n 回報是否重疊,需先綁定姓名 (需先綁定姓名)" +
		"@id: 取得自己的line id (僅能於私訊中使用)",
	"--------------------------------------",
	"管理員可用指令：",
	"@addUser@name: 新增使用者至名單",
	"@removeUser@name: 從名單移除使用者",
	"@addAdmin@userID: 新增管理員",
	"@list: 列出名單上所有使用者",
	"@report: 產生回覆統計報告",
	"@clear: 清除所有使用者回覆",
	"@statistics: 產生回覆統計圓餅圖",
	"@footprint: 取得最新的足跡資料",
	"--------------------------------------",
}, "\n")
