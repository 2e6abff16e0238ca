package analysis

import "strings"

const codePlaceholder = "{code}"

var prompts = map[Kind]string{
	Documentation: `
You are a helpful assistant.
You are responsible for analyzing the given VBA Macro code and generating a comprehensive documentation of the underlying logic, data flow and process flow.
Your response must contain the underlying logic, data flow and process flow for each of the subroutines available in the given code.
VBA Code:{code}
`,
	Logic: `
You are a helpful assistant.
You are responsible for extracting and explaining the functional logic embedded within the given VBA macro.
Your response should help technical and non-technical stakeholders understand the business logic, supporting better decision-making
and transformation efforts.
VBA Code:{code}
`,
	Quality: `
Please analyze the provided VBA Macro code and evaluate its quality and efficiency.
Identify potential inefficiencies, redundant code, and optimization opportunities to improve macro performance and reliability.
Pay particular attention in analyzing:
  Code Efficiency: Assess if the code is optimized for speed and resource usage.
  Redundant Code: Identify any sections of code that repeat functionality unnecessarily.
  Optimization Opportunities: Suggest improvements or optimizations that could enhance the macro's performance.
Please provide only a detailed feedback on each of these aspects to guide improvements in the given VBA Macro code.
Do not provide any VBA code as a part of the response.
Here is the VBA Macro code snippet:
VBA Code:{code}
`,
	DataFlow: `
Please analyze the provided VBA Macro code and evaluate the data flow within the macros.
Identify bottlenecks and opportunities for optimization to enhance efficiency and performance in data processing tasks. Specifically, focus on:
Data Flow Analysis: Map out how data moves through the macro from input to output.
Bottlenecks: Identify points in the code where data processing slows down or encounters inefficiencies.
Optimization Opportunities: Recommend changes or optimizations to streamline data processing and improve overall performance.
Resource Usage: Assess how efficiently resources are utilized during data processing.
Scalability: Consider how well the macro handles varying data volumes and complexity.

Please provide detailed insights and recommendations to optimize the VBA Macro code for improved efficiency and performance in data processing tasks.
Here is the VBA Macro code snippet:
VBA Code:{code}
`,
	Refactor: `
Please provide recommendations for refactoring or rewriting the given VBA Macro code (only if necessary) using modern programming languages and technologies to enhance maintainability, scalability, and performance.
Consider the following:
  Language and Technology Recommendations: Suggest suitable modern programming languages (e.g., Python) and technologies (e.g., APIs) that align with the macro's functionality.
  Refactoring Strategies: Recommend specific refactoring techniques to improve code structure, readability, and maintainability.
  Integration Possibilities: Explore integration options with other systems or platforms for enhanced functionality and interoperability.
  Performance Optimization: Identify opportunities to optimize code performance and efficiency in the new environment.
  Compatibility Considerations: Address compatibility issues or considerations when transitioning from VBA to modern languages or technologies.

Please provide detailed guidance on how to effectively modernize the VBA Macro code, ensuring it meets current industry standards and best practices.

Here is the VBA Macro code snippet:
VBA Code:{code}
`,
}

// Prompt returns the model prompt for kind with src substituted. Kinds that
// do not use a model have no prompt.
func Prompt(kind Kind, src string) string {
	tmpl, ok := prompts[kind]
	if !ok {
		return ""
	}
	return strings.Replace(tmpl, codePlaceholder, src, 1)
}
