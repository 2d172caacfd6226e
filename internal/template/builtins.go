package template

// builtins are the transactional templates shipped with the application.
// Bodies stay deliberately plain; campaign styling lives with the marketing
// tooling, not here.
var builtins = map[string]struct {
	subject string
	body    string
}{
	"welcome": {
		subject: "Welcome to {{.Data.AppName}}, {{.Data.Username}}!",
		body: `<html><body>
<h1>Welcome, {{.Data.Username}}!</h1>
<p>Your account is ready. Head over to your profile to add a photo and find people to follow.</p>
<p>&mdash; The {{.Data.AppName}} team</p>
</body></html>`,
	},
	"password_reset": {
		subject: "Reset your password",
		body: `<html><body>
<p>Hi {{.Data.Username}},</p>
<p>Someone requested a password reset for your account. If this was you, use the link below within {{.Data.TTLMinutes}} minutes:</p>
<p><a href="{{.Data.ResetURL}}">Reset password</a></p>
<p>If you didn't ask for this, you can safely ignore this email.</p>
</body></html>`,
	},
	"new_follower": {
		subject: "{{.Data.FollowerName}} started following you",
		body: `<html><body>
<p>Hi {{.Data.Username}},</p>
<p><strong>{{.Data.FollowerName}}</strong> is now following you.</p>
<p><a href="{{.Data.ProfileURL}}">View their profile</a></p>
</body></html>`,
	},
	"comment_notification": {
		subject: "New comment on your post",
		body: `<html><body>
<p>Hi {{.Data.Username}},</p>
<p><strong>{{.Data.CommenterName}}</strong> commented on your post:</p>
<blockquote>{{.Data.Comment}}</blockquote>
<p><a href="{{.Data.PostURL}}">View the conversation</a></p>
</body></html>`,
	},
	"notification": {
		subject: "{{.Data.Subject}}",
		body: `<html><body>
<p>{{.Data.Message}}</p>
</body></html>`,
	},
}
