package billing

import (
	"fmt"
	"time"
)

// buildTrialStartedEmail returns the email content for a student starting a free trial.
func buildTrialStartedEmail(parentName, studentName string, trialEnd time.Time, baseURL string) (subject, html, plainText string) {
	subject = fmt.Sprintf("%s's Success Academy trial has started", studentName)

	ends := "in 14 days"
	if !trialEnd.IsZero() {
		ends = "on " + trialEnd.Format("January 2, 2006")
	}

	html = fmt.Sprintf(`
		<html>
		<body>
			<h2>Welcome to Success Academy!</h2>
			<p>Hi %s,</p>
			<p><strong>%s</strong> is now enrolled on a free trial. The trial ends %s, after which monthly tuition begins automatically.</p>
			<p>Share your family's referral code with friends: every referred family that stays active takes 20%% off your monthly tuition.</p>
			<p><a href="%s/dashboard" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Go to Dashboard</a></p>
			<p>Thanks,<br>The Success Academy Team</p>
		</body>
		</html>
	`, parentName, studentName, ends, baseURL)

	plainText = fmt.Sprintf(`Hi %s,

%s is now enrolled on a free trial. The trial ends %s, after which monthly tuition begins automatically.

Share your family's referral code with friends: every referred family that stays active takes 20%% off your monthly tuition.

Visit your dashboard: %s/dashboard

Thanks,
The Success Academy Team
`, parentName, studentName, ends, baseURL)

	return
}

// buildSubscriptionCancelledEmail returns the email content for a cancelled subscription.
func buildSubscriptionCancelledEmail(parentName, studentName, baseURL string) (subject, html, plainText string) {
	subject = fmt.Sprintf("%s's Success Academy subscription has been cancelled", studentName)

	html = fmt.Sprintf(`
		<html>
		<body>
			<h2>Subscription Cancelled</h2>
			<p>Hi %s,</p>
			<p>The tuition subscription for <strong>%s</strong> has been cancelled. Any pending charges were removed.</p>
			<p>You can enroll again at any time from your dashboard:</p>
			<p><a href="%s/dashboard" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Re-enroll</a></p>
			<p>Thanks,<br>The Success Academy Team</p>
		</body>
		</html>
	`, parentName, studentName, baseURL)

	plainText = fmt.Sprintf(`Hi %s,

The tuition subscription for %s has been cancelled. Any pending charges were removed.

You can enroll again at any time from your dashboard:
%s/dashboard

Thanks,
The Success Academy Team
`, parentName, studentName, baseURL)

	return
}

// buildPaymentFailedEmail returns the email content when a tuition payment fails.
func buildPaymentFailedEmail(parentName, studentName, baseURL string) (subject, html, plainText string) {
	subject = "Action required: your Success Academy payment failed"

	html = fmt.Sprintf(`
		<html>
		<body>
			<h2>Payment Failed</h2>
			<p>Hi %s,</p>
			<p>We were unable to process the latest tuition payment for <strong>%s</strong>.</p>
			<p>Please update your payment method to keep lessons running:</p>
			<p><a href="%s/dashboard" style="background-color: #E74C3C; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Update Payment Method</a></p>
			<p>Thanks,<br>The Success Academy Team</p>
		</body>
		</html>
	`, parentName, studentName, baseURL)

	plainText = fmt.Sprintf(`Hi %s,

We were unable to process the latest tuition payment for %s.

Please update your payment method to keep lessons running:
%s/dashboard

Thanks,
The Success Academy Team
`, parentName, studentName, baseURL)

	return
}

// buildReferralDiscountEmail returns the email content when a referral discount changes.
func buildReferralDiscountEmail(parentName, studentName string, percent int, monthlyCents int64, currency, baseURL string) (subject, html, plainText string) {
	price := formatAmount(monthlyCents, currency)
	if percent > 0 {
		subject = fmt.Sprintf("Your referral discount is now %d%% off", percent)
	} else {
		subject = "Your referral discount has ended"
	}

	html = fmt.Sprintf(`
		<html>
		<body>
			<h2>Referral Discount Updated</h2>
			<p>Hi %s,</p>
			<p>The monthly tuition discount for <strong>%s</strong> is now <strong>%d%%</strong>, based on the families you referred who are currently active.</p>
			<p><strong>New monthly tuition:</strong> %s</p>
			<p><a href="%s/dashboard" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">See Your Referrals</a></p>
			<p>Thanks,<br>The Success Academy Team</p>
		</body>
		</html>
	`, parentName, studentName, percent, price, baseURL)

	plainText = fmt.Sprintf(`Hi %s,

The monthly tuition discount for %s is now %d%%, based on the families you referred who are currently active.

New monthly tuition: %s

See your referrals: %s/dashboard

Thanks,
The Success Academy Team
`, parentName, studentName, percent, price, baseURL)

	return
}

func formatAmount(cents int64, currency string) string {
	if currency == "" || currency == "usd" {
		return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
	}
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
