package signup

// Selectors for the account.weverse.io signup flow. Buttons are matched by
// their label text through XPath.
const (
	EmailInput           = `input[name="userEmail"]`
	ContinueWithEmail    = `//span[contains(text(),"이메일로 계속하기")]`
	SignUpButton         = `//span[contains(text(),"가입하기")]`
	InvalidEmailNotice   = `//*[contains(text(),"유효한 이메일을 입력해 주세요.")]`
	DuplicateEmailNotice = `//*[contains(text(),"이미 가입된")]`

	NewPasswordInput     = `input[name="newPassword"]`
	ConfirmPasswordInput = `input[name="confirmPassword"]`
	NextButton           = `//span[contains(text(),"다음")]`

	NicknameInput = `input[name="nickname"]`

	AgreeAllTerms    = `//span[contains(text(),"모두 동의 합니다.")]`
	MarketingConfirm = `//button[contains(.,"확인")]`
)
