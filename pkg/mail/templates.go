package mail

import (
	"fmt"
	"html"
	"time"
)

// DownloadEmail is the post-purchase email carrying the download link.
func DownloadEmail(to, productTitle, downloadURL string, expiresAt time.Time) Message {
	title := html.EscapeString(productTitle)
	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Thank you for your purchase!</h2>
<p>Your copy of <strong>%s</strong> is ready.</p>
<p><a href="%s" style="display:inline-block;padding:12px 24px;background:#2563eb;color:#fff;text-decoration:none;border-radius:6px">Download PDF</a></p>
<p>This link is valid until <strong>%s</strong>. Keep this email so you can download the file again if you need to.</p>
<p>Happy practicing!<br>The PianoLearn Team</p>
</div>`, title, downloadURL, expiresAt.Format("2 January 2006"))
	return Message{To: to, Subject: "Your PianoLearn download: " + productTitle, HTML: body}
}

// PaymentOptionsEmail carries manual payment instructions when a buyer asks
// for them instead of paying in the browser.
func PaymentOptionsEmail(to, productTitle string, price float64, upiID, upiQRCode string) Message {
	title := html.EscapeString(productTitle)
	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Complete your purchase</h2>
<p>You requested payment details for <strong>%s</strong> (₹%.2f).</p>
<p>Pay via UPI to <strong>%s</strong>, or scan the QR code below:</p>
<p><img src="%s" alt="UPI QR code" width="200" height="200"></p>
<p>Reply to this email with your transaction reference and we will send your download link.</p>
</div>`, title, price, html.EscapeString(upiID), upiQRCode)
	return Message{To: to, Subject: "Payment details for " + productTitle, HTML: body}
}

// ContactAckEmail confirms receipt of a contact form submission.
func ContactAckEmail(to, name string) Message {
	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>We received your message</h2>
<p>Hi %s,</p>
<p>Thanks for getting in touch. We usually reply within one business day.</p>
<p>The PianoLearn Team</p>
</div>`, html.EscapeString(name))
	return Message{To: to, Subject: "We received your message", HTML: body}
}

// ContactNoticeEmail notifies an admin about a new contact message.
func ContactNoticeEmail(adminTo, name, fromEmail, subject, message string) Message {
	body := fmt.Sprintf(`<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>New contact message</h2>
<p><strong>From:</strong> %s &lt;%s&gt;</p>
<p><strong>Subject:</strong> %s</p>
<p style="white-space:pre-wrap;border-left:3px solid #e5e7eb;padding-left:12px">%s</p>
</div>`, html.EscapeString(name), html.EscapeString(fromEmail), html.EscapeString(subject), html.EscapeString(message))
	return Message{To: adminTo, Subject: "Contact form: " + subject, HTML: body}
}

// WelcomeEmail greets a new newsletter subscriber.
func WelcomeEmail(to string) Message {
	body := `<div style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto">
<h2>Welcome to the PianoLearn newsletter!</h2>
<p>You will now hear about new sheet music, practice guides and offers before anyone else.</p>
<p>You can unsubscribe at any time from the link in any newsletter.</p>
<p>The PianoLearn Team</p>
</div>`
	return Message{To: to, Subject: "Welcome to PianoLearn", HTML: body}
}
