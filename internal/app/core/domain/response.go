package domain

import "github.com/shopspring/decimal"

// ResponseCode 回應代碼 固定列舉，字串內容屬於對外契約不可變動
type ResponseCode string

const (
	CodeAccountCreated         ResponseCode = "AccountCreated"
	CodeAccountExists          ResponseCode = "AccountExists"
	CodeAccountFound           ResponseCode = "AccountFound"
	CodeAccountNotExist        ResponseCode = "AccountNotExist"
	CodeAccountCredited        ResponseCode = "AccountCredited"
	CodeAccountDebited         ResponseCode = "AccountDebited"
	CodeTransferSuccess        ResponseCode = "TransferSuccess"
	CodeInsufficientBalance    ResponseCode = "InsufficientBalance"
	CodeInvalidAmount          ResponseCode = "InvalidAmount"
	CodeInvalidTransfer        ResponseCode = "InvalidTransfer"
	CodeInvalidRequest         ResponseCode = "InvalidRequest"
	CodeStoreUnavailable       ResponseCode = "StoreUnavailable"
	CodePartialTransferFailure ResponseCode = "PartialTransferFailure"
)

// 每個代碼對應唯一固定訊息 措辭屬於呈現層，但代碼與訊息的對應關係必須穩定
var responseMessages = map[ResponseCode]string{
	CodeAccountCreated:         "Account has been created successfully!",
	CodeAccountExists:          "An account already exists with this email address!",
	CodeAccountFound:           "User account found!",
	CodeAccountNotExist:        "User with the provided account number does not exist!",
	CodeAccountCredited:        "Amount has been credited to the account successfully!",
	CodeAccountDebited:         "Amount has been debited from the account successfully!",
	CodeTransferSuccess:        "Transfer completed successfully!",
	CodeInsufficientBalance:    "Insufficient balance in the source account!",
	CodeInvalidAmount:          "Amount must be greater than zero!",
	CodeInvalidTransfer:        "Source and destination accounts must differ!",
	CodeInvalidRequest:         "First, middle and last names must not be empty!",
	CodeStoreUnavailable:       "The account store could not execute the request!",
	CodePartialTransferFailure: "Transfer partially applied, operator attention required!",
}

// Message 回傳代碼對應的固定訊息
func (c ResponseCode) Message() string {
	return responseMessages[c]
}

// AccountInfo 帳戶快照 僅含姓名、帳號與餘額
type AccountInfo struct {
	Name    string
	Number  string
	Balance decimal.Decimal
}

// Response 操作結果
// Account 只在觸及單一帳戶的成功操作帶出快照
// 轉帳成功與所有失敗情境一律為 nil
type Response struct {
	Code    ResponseCode
	Message string
	Account *AccountInfo
}

// NewResponse 以代碼與快照組出操作結果
func NewResponse(code ResponseCode, info *AccountInfo) Response {
	return Response{
		Code:    code,
		Message: code.Message(),
		Account: info,
	}
}
