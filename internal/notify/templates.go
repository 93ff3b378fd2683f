package notify

const paymentFailedTemplate = `
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Payment failed</h2>
  <p>The latest charge for <strong>%s</strong> was declined.</p>
  <p>Your session keeps working while the payment provider retries. Please
  update your payment method to avoid a disconnection.</p>
</body>
</html>`

const cancelledTemplate = `
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>Subscription cancelled</h2>
  <p>The subscription for <strong>%s</strong> has ended and the session was
  disconnected.</p>
  <p>You can subscribe again at any time from the dashboard to reconnect.</p>
</body>
</html>`
