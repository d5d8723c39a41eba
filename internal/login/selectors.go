package login

// Selectors for the login, challenge and account pages.
const (
	EmailInput    = `input[name="email"]`
	PasswordInput = `input[name="password"]`
	LoginButton   = `//span[contains(text(),"로그인")]`

	// AbnormalAccessNotice and OTPInput signal the secondary challenge.
	AbnormalAccessNotice = `//li[contains(text(),"비정상적인 접근으로 감지되어, 인증이 필요합니다.")]`
	OTPInput             = `input#otpCode`
	OTPConfirmButton     = `//span[contains(text(),"확인")]`
	LoginCompleteConfirm = `//button[contains(.,"확인")]`

	LogoutButton = `//button[contains(.,"로그아웃")]`
)
