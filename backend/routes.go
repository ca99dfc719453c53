package backend

// Route path constants for the StockPilot REST backend.
// Trailing slashes matter: the backend redirects slash-less POSTs.
const (
	// Auth Routes
	RouteCSRF           = "/auth/csrf/"
	RouteLogin          = "/auth/login/"
	RouteRegister       = "/auth/register/"
	RouteForgotPassword = "/auth/forgot-password/"
	RouteResetPassword  = "/auth/reset-password/" // + {uid}/{token}/
	RouteTokenRefresh   = "/auth/token/refresh/"

	// API Routes
	RouteProducts          = "/api/product/"
	RouteInventory         = "/api/inventory/"
	RouteInventoryForecast = "/api/inventory-forecast/"
	RouteOrders            = "/api/order/"
	RouteOrderItems        = "/api/order/item/"
	RouteStockAlerts       = "/api/stock-alert/"
	RouteForecast          = "/api/forecast/"
	RouteGeminiInsights    = "/api/gemini-insights/"
	RouteAnalytics         = "/api/analytics/"
	RouteChatbot           = "/api/chatbot/"
)

const (
	// CSRFCookieName is the cookie the backend sets alongside /auth/csrf/
	CSRFCookieName = "csrftoken"
	// CSRFHeader carries the anti-forgery token on state-changing requests
	CSRFHeader = "X-CSRFToken"
)
