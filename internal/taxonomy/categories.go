package taxonomy

// Categories returns the fixed research taxonomy: the arXiv categories
// relevant to the finance/AI intersection. Embeddings start out nil and are
// populated by the Manager.
func Categories() []Category {
	return []Category{
		// Computer Science - AI/ML
		{
			Code: "cs.AI",
			Name: "Artificial Intelligence",
			Description: "Artificial intelligence, reasoning, problem solving, knowledge representation, " +
				"planning, machine learning, multi-agent systems, intelligent robotics.",
		},
		{
			Code: "cs.LG",
			Name: "Machine Learning",
			Description: "Machine learning algorithms, supervised learning, unsupervised learning, " +
				"reinforcement learning, deep learning, neural networks, statistical learning.",
		},
		{
			Code: "cs.CR",
			Name: "Cryptography and Security",
			Description: "Cryptography, security protocols, blockchain, distributed ledger technology, " +
				"smart contracts, privacy, authentication, cybersecurity.",
		},
		{
			Code: "cs.CL",
			Name: "Computation and Language",
			Description: "Natural language processing, text analysis, sentiment analysis, language models, " +
				"large language models, transformers, NLP applications in finance.",
		},
		{
			Code: "cs.NE",
			Name: "Neural and Evolutionary Computing",
			Description: "Neural networks, evolutionary algorithms, genetic algorithms, neuroevolution, " +
				"optimization, metaheuristics for trading strategies.",
		},
		{
			Code: "cs.IR",
			Name: "Information Retrieval",
			Description: "Information retrieval, search engines, recommendation systems, " +
				"document classification, text mining for financial data.",
		},
		{
			Code: "cs.GT",
			Name: "Computer Science and Game Theory",
			Description: "Game theory, mechanism design, auctions, market design, algorithmic game theory, " +
				"multi-agent systems, strategic decision making.",
		},
		{
			Code: "cs.MA",
			Name: "Multiagent Systems",
			Description: "Multi-agent systems, distributed AI, agent-based simulation, " +
				"market simulation, collective intelligence, swarm intelligence.",
		},
		{
			Code: "cs.DC",
			Name: "Distributed Computing",
			Description: "Distributed computing, parallel processing, consensus protocols, " +
				"distributed ledgers, high-frequency trading infrastructure.",
		},
		// Quantitative Finance
		{
			Code: "q-fin.TR",
			Name: "Trading and Market Microstructure",
			Description: "Trading strategies, market microstructure, order book dynamics, " +
				"algorithmic trading, high-frequency trading, execution algorithms.",
		},
		{
			Code: "q-fin.PM",
			Name: "Portfolio Management",
			Description: "Portfolio optimization, asset allocation, risk-return tradeoff, " +
				"factor investing, robo-advisors, wealth management.",
		},
		{
			Code: "q-fin.RM",
			Name: "Risk Management",
			Description: "Risk management, value at risk, stress testing, market risk, " +
				"credit risk, operational risk, systemic risk.",
		},
		{
			Code: "q-fin.CP",
			Name: "Computational Finance",
			Description: "Computational finance, numerical methods, Monte Carlo simulation, " +
				"finite difference methods, option pricing, derivatives.",
		},
		{
			Code: "q-fin.MF",
			Name: "Mathematical Finance",
			Description: "Mathematical finance, stochastic calculus, derivative pricing, " +
				"continuous-time finance, martingale theory.",
		},
		{
			Code: "q-fin.ST",
			Name: "Statistical Finance",
			Description: "Statistical finance, financial econometrics, time series analysis, " +
				"volatility modeling, market prediction, quantitative analysis.",
		},
		{
			Code: "q-fin.GN",
			Name: "General Finance",
			Description: "General finance topics, financial markets, behavioral finance, " +
				"market efficiency, fintech, regulatory developments.",
		},
		{
			Code: "q-fin.EC",
			Name: "Economics",
			Description: "Financial economics, market dynamics, price formation, " +
				"information economics, mechanism design in markets.",
		},
		// Statistics
		{
			Code: "stat.ML",
			Name: "Machine Learning (Statistics)",
			Description: "Statistical machine learning, probabilistic models, Bayesian methods, " +
				"statistical inference for prediction and forecasting.",
		},
		{
			Code: "stat.ME",
			Name: "Methodology",
			Description: "Statistical methodology, hypothesis testing, model selection, " +
				"time series methods, causal inference.",
		},
		{
			Code: "stat.AP",
			Name: "Applications",
			Description: "Statistical applications, applied statistics, data analysis, " +
				"empirical studies in finance and economics.",
		},
		// Economics
		{
			Code: "econ.EM",
			Name: "Econometrics",
			Description: "Econometrics, economic forecasting, causal inference, " +
				"panel data, time series econometrics, machine learning in economics.",
		},
		{
			Code: "econ.TH",
			Name: "Theoretical Economics",
			Description: "Economic theory, game theory, mechanism design, " +
				"market design, auction theory, information economics.",
		},
		{
			Code: "econ.GN",
			Name: "General Economics",
			Description: "General economics, macroeconomics, monetary policy, " +
				"central banking, financial regulation, policy analysis.",
		},
		// Mathematics
		{
			Code: "math.OC",
			Name: "Optimization and Control",
			Description: "Optimization theory, control theory, dynamic programming, " +
				"convex optimization, stochastic control for trading.",
		},
		{
			Code: "math.PR",
			Name: "Probability",
			Description: "Probability theory, stochastic processes, martingales, " +
				"random processes in finance, limit theorems.",
		},
		{
			Code: "math.ST",
			Name: "Statistics Theory",
			Description: "Statistical theory, estimation, testing, asymptotic theory, " +
				"mathematical foundations of machine learning.",
		},
	}
}

// fallbackCodes are returned with a neutral similarity when the input text
// cannot be embedded.
var fallbackCodes = []string{"cs.AI", "cs.LG", "q-fin.TR", "cs.CR", "q-fin.RM"}
